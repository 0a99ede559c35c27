package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geodecision/internal/pipeline"
	"github.com/sells-group/geodecision/internal/server"
)

var (
	servePort   int
	serveNoRuns bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve written layers and start runs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		opts := server.Options{
			Dir:            cfg.Output.Folder,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		if !serveNoRuns {
			opts.Runner = runAndWrite
		}
		s := server.New(ctx, opts)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: s.Handler(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		s.Wait()

		return nil
	},
}

func runAndWrite(ctx context.Context) (string, error) {
	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return "", err
	}
	if _, err := pipeline.Write(ctx, res, cfg); err != nil {
		return res.RunID, err
	}
	return res.RunID, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoRuns, "no-runs", false, "serve layers only; POST /api/runs is disabled")
	rootCmd.AddCommand(serveCmd)
}
