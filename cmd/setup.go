package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
	"github.com/ponytojas/mqtt-team-bridge/internal/setup"
)

var setupYes bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Delete and recreate every team's time-series collection",
	RunE:  runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	teams := models.NewTeamSet(cfg.Teams)

	fmt.Fprintf(out, "Teams to configure: %d\n", teams.Len())
	fmt.Fprintf(out, "Teams: %s\n\n", strings.Join(teams.Names(), ", "))

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	existing, err := setup.Inspect(ctx, store, teams.Teams())
	if err != nil {
		return err
	}
	setup.PrintCollections(out, existing)
	fmt.Fprintln(out)

	if !setupYes && !setup.Confirm(cmd.InOrStdin(), out) {
		fmt.Fprintln(out, "\nOperation cancelled by user.")
		return nil
	}
	fmt.Fprintln(out)

	res, err := setup.Reset(ctx, store, teams.Teams(), time.Now)
	if err != nil {
		return err
	}
	res.Print(out)

	if res.Ready() != res.Teams {
		return fmt.Errorf("%d of %d team collections are not ready", res.Teams-res.Ready(), res.Teams)
	}
	return nil
}
