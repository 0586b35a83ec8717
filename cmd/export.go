package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponytojas/mqtt-team-bridge/internal/database"
	"github.com/ponytojas/mqtt-team-bridge/internal/export"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

var (
	exportTeam   string
	exportFormat string
	exportHours  int
	exportLimit  int
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a team's readings to JSON and/or CSV",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportTeam, "team", "", "team to export (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatJSON, "json, csv or both")
	exportCmd.Flags().IntVar(&exportHours, "hours", 0, "only readings from the last N hours")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "at most N readings, newest first")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file name without extension (default <team>_sensor_data)")
	_ = exportCmd.MarkFlagRequired("team")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	team, ok := models.NewTeamSet(cfg.Teams).Lookup(exportTeam)
	if !ok {
		return fmt.Errorf("unknown team %q", exportTeam)
	}

	q := database.Query{Limit: exportLimit}
	if exportHours > 0 {
		q.Since = time.Now().Add(-time.Duration(exportHours) * time.Hour)
	}

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	readings, err := store.Find(ctx, team, q)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no collection for team %s, run setup first: %w", team.Name, err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	export.Summarize(readings).Print(out)
	if len(readings) == 0 {
		return nil
	}

	base := exportOutput
	if base == "" {
		base = team.Name + "_sensor_data"
	}
	paths, err := export.WriteFiles(base, format, readings)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(out, "Exported %d documents to %s\n", len(readings), p)
	}
	return nil
}
