package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"pixopt/config"
	"pixopt/credentials"
	"pixopt/encoder"
	"pixopt/history"
	"pixopt/imagecache"
	"pixopt/job"
	"pixopt/logger"
	"pixopt/optimizer"
	"pixopt/routes"
	"pixopt/srcset"
	"pixopt/taskQueue"
	"pixopt/upstream"
)

const (
	historyMaxAge   = 30 * 24 * time.Hour
	cleanupInterval = 24 * time.Hour
	sweepGrace      = 24 * time.Hour
	mirrorPoll      = time.Second
	shutdownTimeout = 10 * time.Second
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pixopt",
		Short:         "On-demand image optimizer with a disk cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       routes.Version().Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, ok := logger.ParseLevel(config.GetLogLevel())
			if !ok {
				logger.Warnf("Unknown log level %q, using info", config.GetLogLevel())
			}
			return logger.Init(config.GetLogFile(), true, level)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Close()
		},
	}
	rootCmd.PersistentFlags().String("config", "", "image config file (default $PIXOPT_CONFIG or pixopt.yaml)")

	rootCmd.AddCommand(newServeCmd(), newSrcsetCmd(), newKeyCmd(), newSweepCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.ImageConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.LoadImageConfig(path)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Loaded image config from %s", path)
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// serve opens the stores, then runs the HTTP server, the cleanup routine and
// the mirror worker until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.ImageConfig, addr string) error {
	logger.Info("Starting pixopt server initialization")

	if err := credentials.OpenDB(config.GetCredentialsDBPath()); err != nil {
		return err
	}
	defer credentials.CloseDB()

	if err := history.Init(config.GetHistoryDBPath()); err != nil {
		return err
	}
	defer history.Close()

	if err := taskQueue.OpenMirrorQueueDB(config.GetMirrorQueueDBPath()); err != nil {
		return err
	}
	defer taskQueue.CloseMirrorQueueDB()

	if n, err := job.ScanForPendingJobs(); err != nil {
		logger.Errorf("Failed to scan for pending mirror jobs: %v", err)
	} else if n > 0 {
		logger.Infof("Resuming %d pending mirror jobs", n)
	}

	encoder.RegisterDefaults()
	matcher, err := cfg.Matcher()
	if err != nil {
		return err
	}
	cache := imagecache.New(config.GetDistDir())
	fetcher := &upstream.Router{
		Remote: upstream.NewHTTPFetcher(cfg.FetchRateLimit),
		Local:  &upstream.LocalFetcher{Root: config.GetPublicDir()},
	}

	g, gctx := errgroup.WithContext(ctx)
	images := routes.NewImageHandler(gctx, cfg, matcher, cache,
		&optimizer.Pipeline{Fetcher: fetcher, Transcoder: encoder.Encoder{}, Store: cache}, cfg.Dev)

	if config.GetJWTSecret() == "" {
		logger.Warn("PIXOPT_JWT_SECRET is not set; admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           routes.NewMux(images),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Infof("pixopt listening on %s, images at %s", addr, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.Wrap(err, "server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		images.Wait()
		return err
	})
	g.Go(func() error {
		cleanupRoutine(gctx, cache)
		return nil
	})
	g.Go(func() error {
		return job.ProcessPendingJobs(gctx, mirrorPoll)
	})

	err = g.Wait()
	logger.Info("pixopt stopped")
	return err
}

// cleanupRoutine prunes old history records and expired cache entries once a
// day.
func cleanupRoutine(ctx context.Context, cache *imagecache.Cache) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Cleanup routine stopped")
			return
		case <-ticker.C:
			runCleanup(ctx, cache)
		}
	}
}

func runCleanup(ctx context.Context, cache *imagecache.Cache) {
	if n, err := history.CleanupOldRecords(historyMaxAge); err != nil {
		logger.Errorf("Failed to clean up history: %v", err)
	} else {
		logger.Infof("Removed %d history records older than %v", n, historyMaxAge)
	}

	if n, err := cache.Sweep(ctx, sweepGrace); err != nil {
		logger.Errorf("Failed to sweep image cache: %v", err)
	} else {
		logger.Infof("Swept %d cache entries", n)
	}

	logger.Debugf("Forgot %d finished mirror jobs", job.ForgetFinished())
}

func newSrcsetCmd() *cobra.Command {
	var (
		width       int
		quality     int
		sizes       string
		path        string
		unoptimized bool
	)
	cmd := &cobra.Command{
		Use:   "srcset <src>",
		Short: "Print the img attributes the optimizer would serve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var w *int
			if cmd.Flags().Changed("width") {
				w = &width
			}
			if path == "" {
				path = cfg.Path
			}
			attrs := srcset.GenerateImgAttrs(cfg, args[0], w, quality, sizes, srcset.DefaultLoader(path), unoptimized || cfg.Unoptimized)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(attrs)
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "intrinsic width; omit for a responsive plan")
	cmd.Flags().IntVar(&quality, "quality", srcset.DefaultQuality, "quality")
	cmd.Flags().StringVar(&sizes, "sizes", "", "sizes attribute, e.g. \"(max-width: 768px) 50vw, 100vw\"")
	cmd.Flags().StringVar(&path, "path", "", "optimizer endpoint (default from config)")
	cmd.Flags().BoolVar(&unoptimized, "unoptimized", false, "emit the raw src")
	return cmd
}

func newKeyCmd() *cobra.Command {
	var (
		width    int
		quality  int
		mimeType string
		dir      bool
	)
	cmd := &cobra.Command{
		Use:   "key <href>",
		Short: "Print the cache key of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := imagecache.GetCacheKey(args[0], width, quality, mimeType)
			out := key
			if dir {
				out = imagecache.New(config.GetDistDir()).Dir(key)
			}
			_, err := cmd.OutOrStdout().Write([]byte(out + "\n"))
			return err
		},
	}
	cmd.Flags().IntVarP(&width, "width", "w", 0, "width")
	cmd.Flags().IntVarP(&quality, "quality", "q", srcset.DefaultQuality, "quality")
	cmd.Flags().StringVar(&mimeType, "mime", "", "negotiated output type")
	cmd.Flags().BoolVar(&dir, "dir", false, "print the cache directory instead of the key")
	_ = cmd.MarkFlagRequired("width")
	return cmd
}

func newSweepCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired entries from the image cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache := imagecache.New(config.GetDistDir())
			n, err := cache.Sweep(cmd.Context(), grace)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte("removed " + strconv.Itoa(n) + " entries\n"))
			return err
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", sweepGrace, "keep entries that expired less than this long ago")
	return cmd
}
