package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ponytojas/mqtt-team-bridge/config"
	"github.com/ponytojas/mqtt-team-bridge/internal/database"
	"github.com/ponytojas/mqtt-team-bridge/internal/logger"
)

// storeConnectTimeout bounds opening and pinging the store at startup
const storeConnectTimeout = 15 * time.Second

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "team-bridge",
	Short: "Multi-team MQTT to time-series store bridge",
	Long: `Subscribes to one MQTT topic per team and stores every JSON reading in the
team's own time-series collection. Subcommands publish test data, reset team
collections and export a team's readings.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	RunE:              runBridge,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig(_ *cobra.Command, _ []string) error {
	c, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	cfg = c
	logger.Setup(cfg.Logging)
	return nil
}

// openStore connects to the configured store and checks it is reachable
func openStore(ctx context.Context) (database.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	log.Info().Str("driver", cfg.Store.Driver).Msg("Connecting to store...")
	store, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}
	log.Info().Str("driver", cfg.Store.Driver).Msg("Connected to store")
	return store, nil
}
