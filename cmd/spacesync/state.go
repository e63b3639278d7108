package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spacesync/internal/crypto"
	"github.com/TheMichaelB/spacesync/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the local wrapped-DEK index",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known spaces",
	Args:  cobra.NoArgs,
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <space-id>",
	Short: "Show the epoch and records of a space",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <space-id>",
	Short: "Forget all wrapped DEKs of a space",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateListCmd, stateShowCmd, stateResetCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	spaces, err := store.List()
	if err != nil {
		return fmt.Errorf("list spaces: %w", err)
	}

	report(map[string]interface{}{"spaces": spaces}, func() {
		if len(spaces) == 0 {
			printInfo("No spaces found")
			return
		}
		for _, id := range spaces {
			fmt.Println(id)
		}
	})
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	spaceID := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Load(spaceID)
	if errors.Is(err, state.ErrStateNotFound) {
		printError("Space %s not found", spaceID)
		return err
	}
	if err != nil {
		return fmt.Errorf("load space %s: %w", spaceID, err)
	}

	// Records still wrapped under an older epoch are pending rotation.
	stale := 0
	for _, id := range st.RecordIDs() {
		wrapped, _ := st.DEK(id)
		if e, err := crypto.PeekEpoch(wrapped); err == nil && e < st.Epoch {
			stale++
		}
	}

	report(map[string]interface{}{
		"space_id":   st.SpaceID,
		"epoch":      st.Epoch,
		"records":    st.RecordIDs(),
		"stale":      stale,
		"updated_at": st.UpdatedAt,
		"last_error": st.LastError,
	}, func() {
		fmt.Printf("Space:    %s\n", st.SpaceID)
		fmt.Printf("Epoch:    %d\n", st.Epoch)
		fmt.Printf("Records:  %s\n", humanize.Comma(int64(st.RecordCount())))
		if !st.UpdatedAt.IsZero() {
			fmt.Printf("Updated:  %s\n", humanize.Time(st.UpdatedAt))
		}
		if stale > 0 {
			printWarning("%d records wrapped under an older epoch", stale)
		}
		if st.HasError() {
			printError("Last error: %s", st.LastError)
		}
	})
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	spaceID := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(spaceID); err != nil {
		return fmt.Errorf("reset space %s: %w", spaceID, err)
	}

	report(map[string]interface{}{"success": true, "space_id": spaceID}, func() {
		printSuccess("Reset %s", spaceID)
	})
	return nil
}
