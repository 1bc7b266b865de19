package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/abhisek/rehearse/internal/api"
	"github.com/abhisek/rehearse/internal/app"
	"github.com/abhisek/rehearse/internal/auth"
	"github.com/abhisek/rehearse/internal/config"
	"github.com/abhisek/rehearse/internal/launch"
	"github.com/abhisek/rehearse/internal/logger"
	"github.com/abhisek/rehearse/internal/media"
	"github.com/abhisek/rehearse/internal/media/ffmpeg"
	"github.com/abhisek/rehearse/internal/media/synthetic"
	"github.com/abhisek/rehearse/internal/room"
	"github.com/abhisek/rehearse/internal/screen"
	"github.com/abhisek/rehearse/internal/screens/feedback"
	"github.com/abhisek/rehearse/internal/screens/practice"
	"github.com/abhisek/rehearse/internal/store"
)

// runPractice loads config, builds the room and its dependencies, and runs
// the TUI until the user finishes or leaves.
func runPractice(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyPracticeFlags(cmd, cfg)

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, logFile)

	sessionID, _ := cmd.Flags().GetString("session")
	questions, _ := cmd.Flags().GetString("questions")
	lc, err := launch.Resolve(sessionID, questions)
	if err != nil {
		return err
	}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	journal := st.EventRepo()

	client, err := newClient(cmd, cfg, log, lc.SessionID != "")
	if err != nil {
		return err
	}
	backend := api.WithLogging(client, log, journal)

	synth, _ := cmd.Flags().GetBool("synthetic")
	notices := &room.NoticeQueue{}
	preview := &practice.Preview{}

	r, err := room.New(lc, room.Options{
		Backend:  backend,
		Devices:  newDevices(cfg, synth, log),
		Preview:  preview,
		Notifier: notices,
		Limits:   room.Limits{ThinkSeconds: cfg.ThinkSeconds, RecordSeconds: cfg.RecordSeconds},
		Journal:  journal,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	finish := func(h room.Handoff) screen.Screen {
		return feedback.New(h, cfg.APIBaseURL)
	}
	runErr := app.Run(practice.New(r, notices, preview, finish))

	// Every exit path ends here: Ctrl+C mid-answer still cancels the
	// session and releases the camera.
	r.Abandon()
	r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BeaconTimeout)
	defer cancel()
	if err := api.Flush(ctx, backend); err != nil {
		log.Warn().Err(err).Msg("pending beacons not delivered")
	}

	log.Info().Str("run_id", r.RunID()).Msg("practice room closed")
	return runErr
}

func applyPracticeFlags(cmd *cobra.Command, cfg *config.Config) {
	if n, _ := cmd.Flags().GetInt("think-seconds"); n > 0 {
		cfg.ThinkSeconds = n
	}
	if n, _ := cmd.Flags().GetInt("record-seconds"); n > 0 {
		cfg.RecordSeconds = n
	}
}

// newClient builds the backend client. Without stored credentials the
// client runs unauthenticated, which the development backend accepts.
func newClient(cmd *cobra.Command, cfg *config.Config, log zerolog.Logger, needAuth bool) (*api.Client, error) {
	var ts oauth2.TokenSource
	if needAuth {
		creds, err := auth.Load(cfg.CredentialsPath)
		switch {
		case errors.Is(err, auth.ErrNoCredentials):
			fmt.Fprintln(cmd.ErrOrStderr(), "Not signed in; uploading without credentials.")
		case err != nil:
			return nil, err
		default:
			if ts, err = creds.TokenSource(); err != nil {
				return nil, err
			}
		}
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:       cfg.APIBaseURL,
		TokenSource:   ts,
		Timeout:       cfg.RequestTimeout,
		BeaconTimeout: cfg.BeaconTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	return client, nil
}

func newDevices(cfg *config.Config, synth bool, log zerolog.Logger) media.Devices {
	if synth || cfg.Device.Backend == "synthetic" {
		opts := synthetic.DefaultOptions()
		opts.Timeslice = cfg.Device.Timeslice
		return synthetic.New(opts)
	}

	opts := ffmpeg.DefaultOptions()
	if cfg.Device.FFmpegPath != "" {
		opts.Path = cfg.Device.FFmpegPath
	}
	if cfg.Device.Video != "" {
		opts.Video = cfg.Device.Video
	}
	if cfg.Device.Audio != "" {
		opts.Audio = cfg.Device.Audio
	}
	return ffmpeg.New(opts, log)
}
