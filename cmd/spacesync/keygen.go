package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spacesync/internal/crypto"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an identity key or an epoch root key",
	Long: `Keygen creates a P-256 signing identity and prints its did:key.
With --epoch-key it creates a random 32-byte epoch root key instead.`,
	Example: `  spacesync keygen --out identity.jwk
  spacesync keygen --epoch-key`,
	RunE: runKeygen,
}

var (
	keygenOut      string
	keygenEpochKey bool
)

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "",
		"Write the private JWK to this file")
	keygenCmd.Flags().BoolVar(&keygenEpochKey, "epoch-key", false,
		"Generate an epoch root key instead of an identity")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keygenEpochKey {
		key, err := crypto.GenerateDEK()
		if err != nil {
			return err
		}
		defer crypto.Zero(key)

		encoded := hex.EncodeToString(key)
		report(map[string]interface{}{"epoch_key": encoded}, func() {
			fmt.Println(encoded)
		})
		return nil
	}

	key, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	did, err := crypto.EncodeDIDKey(&key.PublicKey)
	if err != nil {
		return err
	}

	if keygenOut != "" {
		data, err := json.MarshalIndent(crypto.ExportPrivateKeyJWK(key), "", "  ")
		if err != nil {
			return fmt.Errorf("encode key: %w", err)
		}
		if err := os.WriteFile(keygenOut, data, 0600); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
	}

	report(map[string]interface{}{
		"did":        did,
		"public_key": crypto.ExportPublicKeyJWK(&key.PublicKey),
		"file":       keygenOut,
	}, func() {
		printSuccess("Generated identity %s", did)
		if keygenOut != "" {
			printInfo("Private key written to %s", keygenOut)
		} else {
			printWarning("Private key not saved; use --out to keep it")
		}
	})
	return nil
}

// loadIdentity reads a private JWK written by keygen.
func loadIdentity(path string) (*crypto.JWK, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var jwk crypto.JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	return &jwk, nil
}
