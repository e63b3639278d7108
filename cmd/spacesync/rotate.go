package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/rotation"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate <space-id>",
	Short: "Re-wrap every DEK of a space under a new epoch key",
	Long: `Rotate moves the wrapped DEKs of a space forward to a new epoch.
Records are not re-encrypted; only their data keys are re-wrapped.

Without --new-key the new epoch key is ratcheted forward from the current one.`,
	Example: `  spacesync rotate space-123 --epoch 4
  spacesync rotate space-123 --epoch 4 --key <hex> --new-key <hex>`,
	Args: cobra.ExactArgs(1),
	RunE: runRotate,
}

var (
	rotateEpoch  uint32
	rotateKey    string
	rotateNewKey string
)

func init() {
	rootCmd.AddCommand(rotateCmd)

	rotateCmd.Flags().Uint32VarP(&rotateEpoch, "epoch", "e", 0,
		"Target epoch (required)")
	rotateCmd.Flags().StringVarP(&rotateKey, "key", "k", "",
		"Current epoch key as hex (will prompt if not provided)")
	rotateCmd.Flags().StringVar(&rotateNewKey, "new-key", "",
		"New epoch key as hex (derived if not provided)")

	_ = rotateCmd.MarkFlagRequired("epoch")
}

func runRotate(cmd *cobra.Command, args []string) error {
	spaceID := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	current, err := store.Load(spaceID)
	if err != nil {
		return fmt.Errorf("load space %s: %w", spaceID, err)
	}

	currentKey, err := readKey(rotateKey, fmt.Sprintf("Epoch %d key for %s: ", current.Epoch, spaceID))
	if err != nil {
		return err
	}
	defer crypto.Zero(currentKey)

	var newKey []byte
	if rotateNewKey != "" {
		newKey, err = readKey(rotateNewKey, "")
	} else {
		newKey, err = rotation.DeriveForward(currentKey, spaceID, current.Epoch, rotateEpoch)
	}
	if err != nil {
		return err
	}
	defer crypto.Zero(newKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			printWarning("\nRotation interrupted, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := rotation.NewService(store, logger).RotateSpace(ctx, spaceID, currentKey, newKey, rotateEpoch)
	if err != nil {
		report(map[string]interface{}{"success": false, "space_id": spaceID, "error": err.Error()}, func() {
			printError("Rotation failed: %v", err)
		})
		return err
	}

	report(map[string]interface{}{
		"success":    true,
		"run_id":     result.RunID,
		"space_id":   spaceID,
		"from_epoch": result.FromEpoch,
		"to_epoch":   result.ToEpoch,
		"rewrapped":  result.Rewrapped,
		"skipped":    result.Skipped,
		"duration":   result.Duration.String(),
	}, func() {
		printSuccess("Rotated %s from epoch %d to %d", spaceID, result.FromEpoch, result.ToEpoch)
		fmt.Printf("   Re-wrapped: %s\n", humanize.Comma(int64(result.Rewrapped)))
		fmt.Printf("   Skipped:    %s\n", humanize.Comma(int64(result.Skipped)))
		fmt.Printf("   Duration:   %s\n", result.Duration)
	})
	return nil
}
