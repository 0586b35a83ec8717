package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ponytojas/mqtt-team-bridge/internal/bridge"
	"github.com/ponytojas/mqtt-team-bridge/internal/database"
	"github.com/ponytojas/mqtt-team-bridge/internal/health"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
	"github.com/ponytojas/mqtt-team-bridge/internal/mqtt"
)

func runBridge(cmd *cobra.Command, _ []string) error {
	log.Info().Msg("Starting multi-team MQTT bridge...")

	teams := models.NewTeamSet(cfg.Teams)
	log.Info().Strs("teams", teams.Names()).Msgf("Configured %d teams", teams.Len())

	store, err := openStore(cmd.Context())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to store")
	}

	// Initialize team collections
	log.Info().Msg("Preparing team collections...")
	if err := ensureTeams(cmd.Context(), store, teams.Teams()); err != nil {
		_ = store.Close(context.Background())
		log.Fatal().Err(err).Msg("Failed to prepare team collections")
	}

	processor := bridge.NewProcessor(teams, store, bridge.WithInsertTimeout(cfg.Store.InsertTimeout))

	log.Info().Msg("Setting up MQTT client...")
	client := mqtt.NewClient(cfg, cfg.MQTT.ClientIDPrefix, teams.Topics(), processor.HandleMessage)
	if err := client.Connect(); err != nil {
		_ = store.Close(context.Background())
		log.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
	}

	var healthSrv *health.Server
	if cfg.Health.Enabled {
		healthSrv = health.NewServer(cfg.Health.Addr, client, processor.Stats())
		healthSrv.Start()
	}

	log.Info().Msg("Bridge is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down bridge...")

	done := make(chan struct{})
	go func() {
		defer close(done)
		shutdown(client, healthSrv, store)
	}()

	select {
	case <-done:
		log.Info().Msg("Bridge stopped")
	case <-time.After(cfg.Bridge.ShutdownTimeout):
		log.Error().Msg("Forced shutdown after timeout")
		os.Exit(1)
	}
	return nil
}

// collectionEnsurer is the part of the store prepared before consuming
type collectionEnsurer interface {
	EnsureCollection(ctx context.Context, team models.Team) error
}

// ensureTeams creates every missing team collection so the first message for
// a team lands in a time-series collection
func ensureTeams(ctx context.Context, store collectionEnsurer, teams []models.Team) error {
	ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	for _, team := range teams {
		if err := store.EnsureCollection(ctx, team); err != nil {
			return fmt.Errorf("failed to prepare collection for team %s: %w", team.Name, err)
		}
		log.Debug().Str("team", team.Name).Msg("Team collection ready")
	}
	return nil
}

// shutdown releases resources in reverse start order
func shutdown(client *mqtt.Client, healthSrv *health.Server, store database.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bridge.ShutdownTimeout)
	defer cancel()

	if err := client.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("Failed to unsubscribe from team topics")
	}
	client.Disconnect()

	if healthSrv != nil {
		if err := healthSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Health server forced to shutdown")
		}
	}

	if err := store.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}
