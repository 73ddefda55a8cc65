package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"comfybridge/internal/pkg/shutdown"
	"comfybridge/internal/worker"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Consume jobs from a Redis list",
	Long: `queue pops {"id","input"} envelopes from JOB_QUEUE_NAME one at a time,
runs each job and stores {"id","status","output"|"error"} under
JOB_RESULT_PREFIX<id> for JOB_RESULT_TTL.`,
	RunE: runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}

	mgr := shutdown.NewManager(a.log, a.cfg.ShutdownTimeout)
	a.registerCleanup(mgr)

	q, err := a.connectQueue(ctx)
	if err != nil {
		_ = mgr.Shutdown()
		return err
	}
	mgr.RegisterCloser("redis", q)

	runErr := make(chan error, 1)
	go func() {
		runErr <- worker.Run(mgr.Context(), worker.Deps{
			Queue:   q,
			Handler: a.proc,
			Log:     a.log,
		})
	}()

	// Registered last so it runs first: the in-flight job finishes storing
	// its outcome before Redis is closed.
	mgr.Register("worker", func(ctx context.Context) error {
		select {
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	return mgr.Wait(ctx)
}
