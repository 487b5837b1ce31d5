package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/config"
	"github.com/devblac/cw-indexer/internal/health"
	"github.com/devblac/cw-indexer/internal/listener"
	"github.com/devblac/cw-indexer/internal/logging"
	"github.com/devblac/cw-indexer/internal/metrics"
	"github.com/devblac/cw-indexer/internal/pipeline"
	"github.com/devblac/cw-indexer/internal/storage"
)

var (
	flagDryRun  bool
	flagHealth  string
	flagMetrics string
)

func init() {
	runCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Match and extract but do not persist")
	runCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	runCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the live transaction feed and index it",
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := os.Getenv("LOG_LEVEL")
		log := logging.NewWithLevel(logLevel)
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cli, err := chain.NewNodeClient(cfg.Node.LCDURL, cfg.Node.RPCURL)
		if err != nil {
			return fmt.Errorf("node client: %w", err)
		}

		codes := chain.NewCodeIDRegistry(cfg.CodeIDs)
		extractors, syncers, err := buildExtractors(cfg, codes)
		if err != nil {
			return err
		}

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
			log.Info("metrics enabled", "addr", flagMetrics)
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv := &http.Server{Addr: flagMetrics, Handler: mux}
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
		}

		pipe := pipeline.New(pipeline.Options{
			Extractors: extractors,
			Syncers:    syncers,
			Chain:      cli,
			Codes:      codes,
			Store:      store,
			Log:        log,
			Metrics:    mtr,
			DryRun:     flagDryRun,
		})

		var opts []listener.Option
		if cfg.Listener.WaitForPort {
			opts = append(opts, listener.WithWaitForPort())
		}
		if cfg.Listener.Base64Attributes {
			opts = append(opts, listener.WithBase64Attributes())
		}
		lst := listener.New(cfg.Node.WSURL, cfg.Listener.EventTypes(), listener.Callbacks{
			OnNewBlock: func(h listener.BlockHeader) {
				pipe.HandleBlock(ctx, h)
			},
			OnTx: func(hash string, res listener.TxResult) {
				pipe.HandleTx(ctx, hash, res)
			},
			OnStateChange: func(s listener.State, isReconnection bool, attempt int) {
				log.Info("listener state", "state", string(s), "reconnection", isReconnection, "attempt", attempt)
				if s == listener.StateConnecting && isReconnection {
					mtr.WSReconnects()
				}
			},
		}, log, opts...)

		if flagHealth != "" {
			nodeChecker := health.NewNodeChecker(cli)
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:      store.Ping,
				NodePing:    nodeChecker.Ping,
				WSConnected: lst.Connected,
			})
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if err := lst.Connect(ctx); err != nil {
			return fmt.Errorf("connect listener: %w", err)
		}
		defer lst.Disconnect()

		log.Info("indexing", "ws", cfg.Node.WSURL, "dry_run", flagDryRun)
		<-ctx.Done()
		return nil
	},
}
