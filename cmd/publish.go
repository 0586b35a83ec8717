package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ponytojas/mqtt-team-bridge/internal/models"
	"github.com/ponytojas/mqtt-team-bridge/internal/mqtt"
	"github.com/ponytojas/mqtt-team-bridge/internal/publisher"
)

var (
	publishTeams    []string
	publishInterval time.Duration
	publishRounds   int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish sample sensor readings to team topics",
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringSliceVar(&publishTeams, "teams", nil, "teams to publish to (default all)")
	publishCmd.Flags().DurationVar(&publishInterval, "interval", 0, "delay between messages (default publisher.interval)")
	publishCmd.Flags().IntVar(&publishRounds, "rounds", 1, "how many times to send to every team")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	teams, err := publisher.SelectTeams(models.NewTeamSet(cfg.Teams), publishTeams)
	if err != nil {
		return err
	}

	interval := cfg.Publisher.Interval
	if cmd.Flags().Changed("interval") {
		interval = publishInterval
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Publisher.Timeout)
	defer cancel()

	client := mqtt.NewClient(cfg, cfg.Publisher.ClientIDPrefix, nil, nil)
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Disconnect()

	log.Info().Msgf("Sending test data to %d teams...", len(teams))
	sent, err := publisher.Run(ctx, client, teams, publisher.Options{
		Interval: interval,
		Linger:   cfg.Publisher.Linger,
		Rounds:   publishRounds,
	})
	if err != nil {
		return fmt.Errorf("test publisher stopped after %d messages: %w", len(sent), err)
	}

	log.Info().Msgf("Sent %d test messages", len(sent))
	return nil
}
