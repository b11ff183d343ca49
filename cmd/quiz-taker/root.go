package main

import (
	"context"
	"course_portal_backend/internal/config"
	"course_portal_backend/internal/session"
	"course_portal_backend/pkg/attemptclient"
	"course_portal_backend/pkg/logger"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cliOptions struct {
	configDir string
	baseURL   string
	token     string

	cfg    *config.Config
	client *attemptclient.Client
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "quiz-taker",
		Short:         "Take timed course quizzes from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config", "configs", "directory containing config.yaml")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "API base URL (overrides client.base_url)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token (overrides client.token)")

	root.AddCommand(newTakeCmd(opts), newResultCmd(opts), newHistoryCmd(opts))
	return root
}

func (o *cliOptions) init() error {
	cfg, err := config.LoadConfig(o.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.baseURL != "" {
		cfg.Client.BaseURL = o.baseURL
	}
	if o.token != "" {
		cfg.Client.Token = o.token
	}
	if cfg.Client.Token == "" {
		return fmt.Errorf("no token: set client.token, QUIZ_TAKER_TOKEN or --token")
	}
	o.cfg = cfg

	logger.InitFileLogger(cfg, "logs/quiz-taker.log")
	o.client = attemptclient.New(cfg.Client.BaseURL, cfg.Client.Token, time.Duration(cfg.Client.RequestTimeoutSeconds)*time.Second)
	return nil
}

func (o *cliOptions) retryPolicy() session.RetryPolicy {
	c := o.cfg.Client
	return session.RetryPolicy{
		InitialInterval: time.Duration(c.SaveRetryInitialMs) * time.Millisecond,
		MaxInterval:     time.Duration(c.SaveRetryMaxMs) * time.Millisecond,
		MaxElapsedTime:  time.Duration(c.SaveRetryMaxElapsedSeconds) * time.Second,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newTakeCmd(opts *cliOptions) *cobra.Command {
	var quizID, chapterItemID uint

	cmd := &cobra.Command{
		Use:   "take",
		Short: "Start or resume an attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			events := make(chan session.Event, 64)
			done := make(chan struct{})
			ctrl := session.NewController(opts.client,
				session.WithLogger(logger.Log),
				session.WithTickInterval(time.Duration(opts.cfg.Client.TickIntervalMs)*time.Millisecond),
				session.WithRetryPolicy(opts.retryPolicy()),
				session.WithFlushTimeout(time.Duration(opts.cfg.Client.FlushTimeoutSeconds)*time.Second),
				session.WithListener(func(e session.Event) {
					if e.Type == session.EventTick {
						// tick 可以丢，下一次会补上
						select {
						case events <- e:
						default:
						}
						return
					}
					select {
					case events <- e:
					case <-done:
					}
				}),
			)
			defer ctrl.Close()
			defer close(done)

			attemptID, err := ctrl.ResolveOrStart(ctx, quizID, chapterItemID)
			if err != nil {
				return err
			}
			logger.Log.Info("attempt resolved", zap.Uint("attemptId", attemptID))

			t := newTerminal(ctrl, cmd.InOrStdin(), cmd.OutOrStdout())
			return t.run(ctx, events)
		},
	}

	cmd.Flags().UintVar(&quizID, "quiz", 0, "quiz id")
	cmd.Flags().UintVar(&chapterItemID, "chapter-item", 0, "chapter item id")
	_ = cmd.MarkFlagRequired("quiz")
	_ = cmd.MarkFlagRequired("chapter-item")
	return cmd
}

func newResultCmd(opts *cliOptions) *cobra.Command {
	var attemptID uint

	cmd := &cobra.Command{
		Use:   "result",
		Short: "Show the graded result of a submitted attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			res, err := session.NewResultAggregator(opts.client).Load(ctx, attemptID)
			if err != nil {
				return err
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().UintVar(&attemptID, "attempt", 0, "attempt id")
	_ = cmd.MarkFlagRequired("attempt")
	return cmd
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var chapterItemID uint

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List submitted attempts for a chapter item",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			history, err := opts.client.GetAttemptsHistory(ctx, chapterItemID)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), history)
			return nil
		},
	}
	cmd.Flags().UintVar(&chapterItemID, "chapter-item", 0, "chapter item id")
	_ = cmd.MarkFlagRequired("chapter-item")
	return cmd
}
