package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pressboard/pressboard/pkg/config"
	"github.com/pressboard/pressboard/pkg/forum"
	"github.com/pressboard/pressboard/pkg/logging"
	"github.com/pressboard/pressboard/pkg/metrics"
	"github.com/pressboard/pressboard/pkg/netloop"
	"github.com/pressboard/pressboard/pkg/resources"
	"github.com/pressboard/pressboard/pkg/routing"
	"github.com/pressboard/pressboard/pkg/templating"
)

func newServeCmd() *cobra.Command {
	cfg := config.Default()
	var seedThreads, seedPostsPerThread int

	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the forum server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg, seedThreads, seedPostsPerThread)
		},
	}

	flags := c.Flags()
	flags.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	flags.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "maximum simultaneous connections")
	flags.StringVar(&cfg.ResourceDir, "resource-dir", cfg.ResourceDir, "directory holding page templates")
	flags.StringVar(&cfg.HTMLDir, "html-dir", cfg.HTMLDir, "directory holding static error pages")
	flags.StringVar(&cfg.UploadsDir, "uploads-dir", cfg.UploadsDir, "directory to store and serve uploaded files from")
	flags.BoolVar(&cfg.SeedDemoData, "seed-demo-data", cfg.SeedDemoData, "populate the forum with sample threads on startup")
	flags.IntVar(&seedThreads, "seed-threads", 5, "number of sample threads to create (with --seed-demo-data)")
	flags.IntVar(&seedPostsPerThread, "seed-posts-per-thread", 8, "number of sample replies per seeded thread")

	return c
}

func runServe(ctx context.Context, cfg config.Config, seedThreads, seedPostsPerThread int) error {
	log := logging.New()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	signal.Ignore(syscall.SIGPIPE)

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return fmt.Errorf("pressboardd: creating uploads dir: %w", err)
	}

	f := forum.New(cfg.UploadsDir)
	if cfg.SeedDemoData {
		rng := rand.New(rand.NewSource(int64(os.Getpid())))
		if err := forum.Seed(f, seedThreads, seedPostsPerThread, rng); err != nil {
			return fmt.Errorf("pressboardd: seeding demo data: %w", err)
		}
		log.WithField("threads", seedThreads).Info("seeded demo data")
	}

	cache := resources.New(".")
	engine := templating.New(cache, cfg.ResourceDir)

	router := &routing.Router{
		Forum:      f,
		Engine:     engine,
		Cache:      cache,
		HTMLDir:    cfg.HTMLDir,
		UploadsDir: cfg.UploadsDir,
		Log:        log,
	}

	listenFD, err := netloop.ListenAndBind(cfg.Port, 10)
	if err != nil {
		return fmt.Errorf("pressboardd: listen: %w", err)
	}

	mux := netloop.New(listenFD, cfg.MaxConnections, router, log)
	tracker := metrics.NewTracker(f, log.WithField("component", "metrics"), mux.ActiveConnections)

	log.WithFields(map[string]interface{}{
		"port":            cfg.Port,
		"max_connections": cfg.MaxConnections,
	}).Info("pressboard listening")

	workers, workerCtx := errgroup.WithContext(ctx)
	workers.Go(func() error {
		return mux.Run(workerCtx)
	})
	workers.Go(func() error {
		return tracker.Run(workerCtx)
	})

	return workers.Wait()
}
