package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/dataloom/internal/ai"
	"github.com/KaramelBytes/dataloom/internal/analysis"
	"github.com/KaramelBytes/dataloom/internal/chat"
	"github.com/KaramelBytes/dataloom/internal/metadata"
	"github.com/KaramelBytes/dataloom/internal/server"
	"github.com/KaramelBytes/dataloom/internal/storage"
)

var flagListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the DataLoom HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return errors.New("configuration not loaded")
		}
		addr := cfg.ListenAddr
		if flagListenAddr != "" {
			addr = flagListenAddr
		}

		log, err := newLogger(cfg.Debug)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync() //nolint:errcheck

		objects, err := storage.New(storage.Config{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.StorageUseSSL,
		})
		if err != nil {
			return err
		}

		meta, err := metadata.Open(cfg.MetadataPath)
		if err != nil {
			return err
		}
		defer meta.Close()

		client := ai.NewClientWithBaseURL(
			cfg.APIKey,
			time.Duration(cfg.HTTPTimeoutSec)*time.Second,
			cfg.RetryMaxAttempts,
			time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond,
			time.Duration(cfg.RetryMaxDelayMs)*time.Millisecond,
			cfg.APIBaseURL,
		)
		asker := chat.NewService(client, chat.Options{
			Model:       cfg.DefaultModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}, log.Named("chat"))

		srv := server.New(objects, meta, asker, server.Options{
			AnalysisOptions: analysis.Options{
				TopValues:       cfg.TopValues,
				TopCorrelations: cfg.TopCorrelations,
				SampleRows:      cfg.SampleRows,
			},
			PresignExpiry: time.Duration(cfg.PresignExpirySec) * time.Second,
		}, log.Named("http"))

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("listening", zap.String("addr", addr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errCh:
			return fmt.Errorf("serve: %w", err)
		case sig := <-stop:
			log.Info("shutting down", zap.String("signal", sig.String()))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	},
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagListenAddr, "listen", "", "listen address (overrides config, e.g. :8000)")
}
