// Package main is the entry point for the neon player backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/neon-player-backend/internal/config"
	"github.com/edumarques81/neon-player-backend/internal/version"
)

var flags struct {
	envFile   string
	port      string
	output    string
	store     string
	dataDir   string
	catalog   string
	staticDir string
	logFile   string
	debug     bool
}

var rootCmd = &cobra.Command{
	Use:           "neonplayer",
	Short:         "Neon player audio backend",
	Long:          "Serves the neon player: playback, playlist state and the socket.io control surface.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and socket.io server",
	RunE:  serve,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "load settings from this .env file (default ./.env)")
	pf.StringVar(&flags.port, "port", "", "HTTP server port (NEON_PORT)")
	pf.StringVar(&flags.output, "output", "", "audio output: mpd or virtual (NEON_OUTPUT)")
	pf.StringVar(&flags.store, "store", "", "state store: memory, file, sqlite or redis (NEON_STORE)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "directory for persisted state (NEON_DATA_DIR)")
	pf.StringVar(&flags.catalog, "catalog", "", "track catalog YAML file (NEON_CATALOG)")
	pf.StringVar(&flags.staticDir, "static", "", "directory to serve static files from (NEON_STATIC_DIR)")
	pf.StringVar(&flags.logFile, "log-file", "", "also write logs to this rotating file (NEON_LOG_FILE)")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging (NEON_DEBUG)")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

// loadConfig reads the environment and applies flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var files []string
	if flags.envFile != "" {
		files = append(files, flags.envFile)
	}
	cfg := config.Load(files...)

	set := cmd.Flags().Changed
	if set("port") {
		cfg.Port = flags.port
	}
	if set("output") {
		cfg.Output = flags.output
	}
	if set("store") {
		cfg.Store = flags.store
	}
	if set("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if set("catalog") {
		cfg.CatalogPath = flags.catalog
	}
	if set("static") {
		cfg.StaticDir = flags.staticDir
	}
	if set("log-file") {
		cfg.LogFile = flags.logFile
	}
	if set("debug") {
		cfg.Debug = flags.debug
	}
	return cfg, cfg.Validate()
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	closeLog := setupLogging(cfg.Debug, cfg.LogFile)
	defer closeLog()

	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Audio Playback & Playlist Backend")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Port).
		Str("output", cfg.Output).
		Str("store", cfg.Store).
		Str("data_dir", cfg.DataDir).
		Str("catalog", cfg.CatalogPath).
		Bool("exclusive_password_set", cfg.ExclusivePassword != "").
		Msg("Configuration")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("neonplayer failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
