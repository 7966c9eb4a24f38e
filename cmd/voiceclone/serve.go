package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-voice-clone/internal/config"
	"github.com/example/go-voice-clone/internal/server"
	"github.com/example/go-voice-clone/internal/vclone"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voice-clone HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc := newCloneService(cfg)
			defer func() { _ = svc.Close() }()

			jobs := vclone.NewJobRunner(
				newServeRunFunc(cfg, svc),
				func() []string { return runPreflight(cfg) },
				0,
			)

			srv := server.New(cfg, jobs).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	defaults := config.DefaultConfig()
	config.RegisterFlags(cmd.Flags(), defaults)

	return cmd
}

type synthesisRunner interface {
	SynthesizeToFile(ctx context.Context, req vclone.Request) vclone.Result
}

// newServeRunFunc wraps the service for background jobs: model presets
// are resolved per request and each job runs under the configured
// deadline.
func newServeRunFunc(cfg config.Config, svc synthesisRunner) func(context.Context, vclone.Request) vclone.Result {
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second

	return func(ctx context.Context, req vclone.Request) vclone.Result {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		req.Model = config.ResolveModel(req.Model)
		return svc.SynthesizeToFile(ctx, req)
	}
}
