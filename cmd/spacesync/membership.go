package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/membership"
	"github.com/TheMichaelB/spacesync/internal/models"
)

var membershipCmd = &cobra.Command{
	Use:   "membership",
	Short: "Sign and verify membership log entries",
}

var membershipSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a membership entry and print its payload",
	Example: `  spacesync membership sign --identity admin.jwk --space space-123 --type d --ucan <jwt>
  spacesync membership sign --identity bob.jwk --space space-123 --type a --ucan <jwt> --handle bob@example.com`,
	Args: cobra.NoArgs,
	RunE: runMembershipSign,
}

var membershipVerifyCmd = &cobra.Command{
	Use:   "verify <payload-file>",
	Short: "Verify a membership entry payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runMembershipVerify,
}

var (
	memberIdentity  string
	memberSpace     string
	memberType      string
	memberUCAN      string
	memberHandle    string
	memberRecipient string
	memberEpoch     uint32
)

func init() {
	rootCmd.AddCommand(membershipCmd)
	membershipCmd.AddCommand(membershipSignCmd, membershipVerifyCmd)

	membershipSignCmd.Flags().StringVar(&memberIdentity, "identity", "",
		"Private JWK file written by keygen (required)")
	membershipSignCmd.Flags().StringVar(&memberType, "type", "",
		"Entry type: d (delegation), a (accepted), x (declined), r (revoked)")
	membershipSignCmd.Flags().StringVar(&memberUCAN, "ucan", "",
		"UCAN token the entry refers to (required)")
	membershipSignCmd.Flags().StringVar(&memberHandle, "handle", "",
		"Signer handle")
	membershipSignCmd.Flags().StringVar(&memberRecipient, "recipient", "",
		"Recipient handle")
	membershipSignCmd.Flags().Uint32Var(&memberEpoch, "epoch", 0,
		"Epoch the entry was written at")

	for _, c := range []*cobra.Command{membershipSignCmd, membershipVerifyCmd} {
		c.Flags().StringVar(&memberSpace, "space", "", "Space ID (required)")
		_ = c.MarkFlagRequired("space")
	}
	_ = membershipSignCmd.MarkFlagRequired("identity")
	_ = membershipSignCmd.MarkFlagRequired("type")
	_ = membershipSignCmd.MarkFlagRequired("ucan")
}

func runMembershipSign(cmd *cobra.Command, args []string) error {
	entryType, err := models.ParseMembershipEntryType(memberType)
	if err != nil {
		return err
	}

	jwk, err := loadIdentity(memberIdentity)
	if err != nil {
		return err
	}
	key, err := crypto.ImportPrivateKeyJWK(*jwk)
	if err != nil {
		return fmt.Errorf("import identity: %w", err)
	}

	entry := &models.MembershipEntry{
		UCAN: strings.TrimSpace(memberUCAN),
		Type: entryType,
	}
	if cmd.Flags().Changed("epoch") {
		entry.Epoch = &memberEpoch
	}
	if memberHandle != "" {
		entry.SignerHandle = &memberHandle
	}
	if memberRecipient != "" {
		entry.RecipientHandle = &memberRecipient
	}

	if err := membership.Sign(key, entry, memberSpace); err != nil {
		return err
	}
	payload, err := membership.Serialize(entry)
	if err != nil {
		return err
	}

	fmt.Println(payload)
	return nil
}

func runMembershipVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	entry, err := membership.Parse(string(data))
	if err != nil {
		return err
	}

	valid, err := membership.Verify(entry, memberSpace)
	if err != nil {
		return err
	}

	signer, _ := crypto.EncodeDIDKeyFromJWK(entry.SignerPublicKey)
	report(map[string]interface{}{
		"valid":  valid,
		"type":   string(entry.Type),
		"signer": signer,
	}, func() {
		if valid {
			printSuccess("Valid %s entry signed by %s", entry.Type, signer)
		} else {
			printError("Invalid %s entry", entry.Type)
		}
	})

	if !valid {
		return errors.New("membership entry verification failed")
	}
	return nil
}
