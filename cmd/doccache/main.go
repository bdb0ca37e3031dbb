// Package main provides the doccache CLI entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/doccache/pkg/config"
	"github.com/orneryd/doccache/pkg/doccache"
	"github.com/orneryd/doccache/pkg/persist"
	"github.com/orneryd/doccache/pkg/server"
)

var (
	version = "0.1.0"
	commit  = "dev" // Set via ldflags: -X main.commit=$(git rev-parse --short HEAD)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "doccache",
		Short: "Whole-document GraphQL result cache",
		Long: `doccache caches complete GraphQL query results keyed by the
identity of the whole query plus its argument set. It runs as a caching
proxy in front of an upstream GraphQL endpoint, optionally persisting its
state to disk between restarts.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newSnapshotCmd())

	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath   string
		address      string
		port         int
		upstream     string
		dataDir      string
		noPersist    bool
		noPlayground bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the caching proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.FindConfigFile()
			}

			cfg, err := config.LoadFromFile(configPath)
			if err != nil {
				return err
			}

			// Flags take precedence over file and environment.
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("upstream") {
				cfg.Upstream.URL = upstream
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Persistence.Dir = dataDir
				cfg.Persistence.Enabled = true
			}
			if noPersist {
				cfg.Persistence.Enabled = false
			}
			if noPlayground {
				cfg.Server.Playground = false
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&address, "address", "127.0.0.1", "listen address")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	cmd.Flags().StringVarP(&upstream, "upstream", "u", "", "upstream GraphQL endpoint URL")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "enable persistence into this directory")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "disable persistence")
	cmd.Flags().BoolVar(&noPlayground, "no-playground", false, "disable the playground endpoint")

	return cmd
}

func runServe(cfg *config.Config) error {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	cache := doccache.New(&doccache.Config{
		Variant:  cfg.Cache.Variant,
		MemoSize: cfg.Cache.MemoSize,
	})

	var (
		store     *persist.Store
		persister *persist.Persister
	)
	if cfg.Persistence.Enabled {
		var err error
		store, err = persist.Open(cfg.Persistence.Dir, nil)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		persister = persist.NewPersister(store, cache, nil)
		defer persister.Close()

		restored, err := persister.Hydrate()
		if err != nil {
			return err
		}
		logger.Printf("restored %d cached entries from %s", restored, cfg.Persistence.Dir)
	}

	srv, err := server.New(cache, &server.Config{
		Address:          cfg.Server.Address,
		Port:             cfg.Server.Port,
		UpstreamURL:      cfg.Upstream.URL,
		UpstreamTimeout:  cfg.Upstream.Timeout,
		EnablePlayground: cfg.Server.Playground,
	}, logger)
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}

	if persister != nil {
		if err := persister.Checkpoint(); err != nil {
			return err
		}
	}

	return nil
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <data-dir>",
		Short: "Dump a persisted cache snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := persist.Open(args[0], nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			snap, err := store.Load()
			if err != nil {
				return err
			}

			return snap.Encode(cmd.OutOrStdout())
		},
	}
}
