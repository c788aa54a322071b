package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/engclass/internal/bot"
	"github.com/example/engclass/internal/classroom"
	"github.com/example/engclass/internal/database"
	"github.com/example/engclass/internal/metrics"
	"github.com/example/engclass/internal/scheduler"
	"github.com/example/engclass/internal/session"
	"github.com/example/engclass/internal/spaced_repetition"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the classroom bot with reminders",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, db, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()
	defer logger.Sync()
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	tracker := spaced_repetition.NewTracker(database.NewMasteryRepository(db, cfg.StudentID),
		spaced_repetition.WithLogger(logger),
		spaced_repetition.WithStudent(cfg.StudentID),
		spaced_repetition.WithObserver(m.ObserveMastery))
	words := database.NewWordRepository(db).WithRedSource(tracker)
	orch := session.New(words, tracker,
		session.WithLogger(logger),
		session.WithPhaseHook(m.ObservePhase),
		session.WithGradeHook(m.ObserveGrade))

	room := classroom.NewRoom(orch, classroom.Config{
		CommandClearDelay: cfg.CommandClearDelay,
		FeedbackDelay:     cfg.FeedbackDelay,
	}, classroom.WithLogger(logger), classroom.WithStaleHook(m.ObserveStale))
	go room.Run(ctx)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("unable to create bot: %w", err)
	}
	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	b, err := bot.New(api, room, bot.Config{
		TeacherChatID: cfg.TeacherChatID,
		StudentChatID: cfg.StudentChatID,
		IntakeSize:    cfg.IntakeSize,
		RateLimit:     rate.Limit(cfg.RateLimit),
		RateBurst:     cfg.RateBurst,
	}, bot.WithLogger(logger))
	if err != nil {
		return err
	}

	sched := scheduler.New(database.NewReviewRepository(db), b, scheduler.Config{
		Interval:  cfg.ReminderInterval,
		StartHour: cfg.NotificationStartHour,
		EndHour:   cfg.NotificationEndHour,
		Location:  time.UTC,
	}, scheduler.WithLogger(logger))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := api.GetUpdatesChan(updateConfig)
	defer api.StopReceivingUpdates()

	logger.Info("classroom started",
		zap.Int64("teacher_chat_id", cfg.TeacherChatID),
		zap.Int64("student_chat_id", cfg.StudentChatID))
	err = b.Start(ctx, updates)
	if errors.Is(err, context.Canceled) {
		logger.Info("classroom stopped")
		return nil
	}
	return err
}
