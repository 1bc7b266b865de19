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

	"github.com/abhisek/rehearse/internal/devserver"
	"github.com/abhisek/rehearse/internal/logger"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory practice backend for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		secret, _ := cmd.Flags().GetString("secret")
		failUploads, _ := cmd.Flags().GetInt("fail-uploads")

		log := logger.Setup(cfg.LogLevel, "pretty", cmd.ErrOrStderr())

		srv := devserver.New(devserver.Options{
			Secret:      []byte(secret),
			FailUploads: failUploads,
		}, log)

		out := cmd.OutOrStdout()
		if secret != "" {
			tok, err := srv.IssueToken("dev-user", 24*time.Hour)
			if err != nil {
				return fmt.Errorf("issue dev token: %w", err)
			}
			fmt.Fprintf(out, "Dev token (24h):\n  %s\n\nSign in with: rehearse login --token <token>\n\n", tok)
		}

		hs := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("devserver listening")
			errCh <- hs.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("devserver shutting down")
		return hs.Shutdown(shutdownCtx)
	},
}

func init() {
	devserverCmd.Flags().String("addr", ":8787", "Listen address")
	devserverCmd.Flags().String("secret", "", "HS256 secret; when set, requests need a bearer token")
	devserverCmd.Flags().Int("fail-uploads", 0, "Fail the next N uploads with 503")
}
