package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"comfybridge/internal/httpapi"
	"comfybridge/internal/httpapi/handlers"
	"comfybridge/internal/pkg/shutdown"
)

var serveWithQueue bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the invocation API over HTTP",
	Long: `serve exposes POST /runsync, which runs one job per request and answers
with its result, plus /health, /workflows and /metrics.

With --queue it also mounts POST /run and GET /status/{id}, which enqueue
jobs for a "queue" worker and read back their stored outcomes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithQueue, "queue", false, "mount the async /run and /status endpoints backed by Redis")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	log := a.log

	mgr := shutdown.NewManager(log, a.cfg.ShutdownTimeout)
	a.registerCleanup(mgr)

	hd := handlers.Deps{
		Runner:      a.proc,
		Engine:      a.engine,
		Workflows:   a.workflows,
		SP:          a.sp,
		Log:         log,
		ServiceName: a.cfg.ServiceName,
	}
	if serveWithQueue {
		q, err := a.connectQueue(ctx)
		if err != nil {
			_ = mgr.Shutdown()
			return err
		}
		mgr.RegisterCloser("redis", q)
		hd.Jobs = q
	}

	server := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Handlers:           hd,
			Log:                log,
			CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		// No WriteTimeout: /runsync holds the response open for the whole job.
		IdleTimeout: 120 * time.Second,
	}

	mgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err.Error())
			srvErr <- err
			cancel()
		}
	}()

	err = mgr.Wait(waitCtx)
	select {
	case serr := <-srvErr:
		return serr
	default:
		return err
	}
}
