// Package main implements the catalogmeta binary: the property metadata
// service plus client commands for inspecting kinds and managing entities.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/arkilian/catalogmeta/internal/app"
	"github.com/arkilian/catalogmeta/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "catalogmeta",
		Short: "Property metadata service for federated catalogs",
		Long: `catalogmeta validates, translates and stores the properties of catalogs
and tables across Hive, JDBC, MySQL and fileset backends.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file applied before CATALOGMETA_* variables are read")

	cmd.AddCommand(
		serveCmd(),
		kindsCmd(),
		propertiesCmd(),
		validateCmd(),
		createCmd(),
		alterCmd(),
		describeCmd(),
		historyCmd(),
		entitiesCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "catalogmeta version %s (commit: %s)\n", version, commit)
			},
		},
	)
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		configFile string
		dataDir    string
		httpAddr   string
		grpcAddr   string
		backend    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC property service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			// Command line flags have the highest priority.
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if grpcAddr != "" {
				cfg.GRPC.Enabled = true
				cfg.GRPC.Addr = grpcAddr
			}
			if backend != "" {
				cfg.Backend.Type = backend
			}

			printBanner(cfg)

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := application.Start(ctx); err != nil {
				return fmt.Errorf("failed to start application: %w", err)
			}

			if err := application.WaitForShutdown(ctx); err != nil {
				log.Printf("Shutdown error: %v", err)
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			return application.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (enables gRPC)")
	cmd.Flags().StringVar(&backend, "backend", "", "Backend type: sqlite, local, s3")
	return cmd
}

// loadConfig loads the file if given, then applies environment variables.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("catalogmeta %s (commit: %s)", version, commit)
	log.Printf("Configuration:")
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Backend:  %s", cfg.Backend.Type)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
	if cfg.Metrics.Enabled {
		log.Printf("  Metrics:  %s (namespace %s)", cfg.Metrics.Path, cfg.Metrics.Namespace)
	}
	for name, k := range cfg.Kinds {
		log.Printf("  Kind override %s: strict=%v policy=%q", name, k.StrictUnknownKeys != nil && *k.StrictUnknownKeys, k.UnmappedKeyPolicy)
	}
}
