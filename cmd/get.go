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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/rangedl/internal/downloaders"
	"github.com/tanq16/rangedl/internal/metrics"
	"github.com/tanq16/rangedl/internal/orchestrator"
	"github.com/tanq16/rangedl/internal/output"
	"github.com/tanq16/rangedl/internal/segment"
)

var errInterrupted = errors.New("download interrupted, run the same command again to resume")

func newGetCmd() *cobra.Command {
	var fileName string
	var retries int

	cmd := &cobra.Command{
		Use:   "get [URL] [--name FILE_NAME]",
		Short: "Download a resource over http(s) or s3, resuming any breakpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGet(ctx, args[0], fileName, retries)
		},
	}

	cmd.Flags().StringVarP(&fileName, "name", "n", "", "Destination file name (inferred from the URL if not provided)")
	cmd.Flags().IntVarP(&retries, "retries", "r", 5, "Restarts allowed after segment errors before giving up")
	return cmd
}

func runGet(ctx context.Context, rawURL, fileName string, retries int) error {
	destDir := cfg.OutputDir
	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	store, closeStore, err := openStore(cfg, destDir)
	if err != nil {
		return err
	}
	defer closeStore()

	var rec *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		rec = metrics.New()
		srv := serveMetrics(cfg.Metrics.Addr, rec)
		defer srv.Close()
	}

	registry := downloaders.NewRegistry(cfg.HTTPClientConfig(), cfg.S3ClientConfig())
	o := orchestrator.New(orchestrator.Options{
		Prober:        registry,
		NewWorker:     segment.Factory(registry),
		Store:         store,
		OutputDir:     destDir,
		ProbeAttempts: cfg.ProbeAttempts,
		Metrics:       rec,
	})

	display := output.NewManager(os.Stdout)
	display.StartDisplay()
	finished := make(chan struct{})
	segmentErrors := make(chan int, orchestrator.MaxWorkers)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range o.Events() {
			display.Handle(ev)
			switch ev.Kind {
			case orchestrator.EventFinished:
				close(finished)
			case orchestrator.EventSegmentError:
				select {
				case segmentErrors <- ev.Index:
				default:
				}
			}
		}
	}()
	shutdown := func() {
		if err := o.Close(); err != nil {
			log.Warn().Str("op", "cmd/get").Err(err).Msg("Error releasing download")
		}
		<-drained
		display.StopDisplay()
	}

	if err := o.StartFile(ctx, rawURL, fileName, cfg.Connections); err != nil {
		shutdown()
		return err
	}

	attempts := 0
	for {
		select {
		case <-finished:
			shutdown()
			return nil
		case <-ctx.Done():
			o.Pause()
			shutdown()
			return errInterrupted
		case index := <-segmentErrors:
			attempts++
			if attempts > retries {
				o.Pause()
				shutdown()
				return fmt.Errorf("segment %d kept failing after %d restarts; the breakpoint is saved, run again to resume", index, retries)
			}
			log.Debug().Str("op", "cmd/get").Msgf("Restarting after segment %d error (attempt %d/%d)", index, attempts, retries)
			select {
			case <-time.After(time.Duration(attempts+1) * 500 * time.Millisecond): // Backoff
			case <-ctx.Done():
				continue
			}
			o.Pause()
			o.Restart()
		}
	}
}

func serveMetrics(addr string, rec *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("op", "cmd/metrics").Err(err).Msgf("Metrics server on %s stopped", addr)
		}
	}()
	log.Info().Str("op", "cmd/metrics").Msgf("Serving metrics on http://%s/metrics", addr)
	return srv
}
