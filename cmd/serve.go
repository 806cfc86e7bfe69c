package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sabiprep/sabiprep/internal/admin"
	"github.com/sabiprep/sabiprep/internal/api"
	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/auth"
	"github.com/sabiprep/sabiprep/internal/config"
	"github.com/sabiprep/sabiprep/internal/goals"
	"github.com/sabiprep/sabiprep/internal/guest"
	"github.com/sabiprep/sabiprep/internal/llm"
	"github.com/sabiprep/sabiprep/internal/review"
	"github.com/sabiprep/sabiprep/internal/session"
	"github.com/sabiprep/sabiprep/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}
		if cfg.JWTSecret == "" {
			return errors.New("SABIPREP_JWT_SECRET is required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, newLogger())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides SABIPREP_HTTP_ADDR)")
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	adminAcct := api.AdminAccount{Email: cfg.AdminEmail, PassHash: cfg.AdminPassHash}
	if cfg.AdminEmail != "" {
		adminAcct.ID = auth.AccountID(cfg.AdminEmail)
		if err := st.UpsertUser(ctx, &admin.User{
			ID:    adminAcct.ID,
			Email: cfg.AdminEmail,
			Name:  "Administrator",
			Role:  auth.RoleAdmin,
		}); err != nil {
			return fmt.Errorf("register admin account: %w", err)
		}
	} else {
		logger.Warn("no admin account configured; back office login disabled")
	}

	rec := audit.NewRecorder(st, logger)
	guests := guest.NewPolicy(st, cfg.GuestQuestionLimit)
	mgr := session.NewManager(session.Config{
		Store:            st,
		Logger:           logger,
		AutosaveInterval: cfg.AutosaveInterval,
	}, func(deviceID string) session.GuestGate {
		return guests.ForDevice(deviceID)
	})
	defer mgr.Shutdown()
	go mgr.RunJanitor(ctx, time.Minute, cfg.SessionIdleTimeout)

	workflow := review.NewWorkflow(st, reviewGenerator(ctx, cfg, st, logger), rec, logger, cfg.ReviewBatchSize)

	handler := api.New(api.Deps{
		Sessions:      mgr,
		Goals:         goals.NewService(st, cfg.DailyGoalQuestions),
		Guests:        guests,
		Questions:     admin.NewQuestions(st, rec, logger),
		Users:         admin.NewUsers(st, rec),
		Reviews:       workflow,
		Audit:         rec,
		Auth:          auth.NewService(cfg.JWTSecret, cfg.TokenTTL),
		Admin:         adminAcct,
		CORSOrigins:   cfg.CORSOrigins,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "driver", st.Driver())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// reviewGenerator returns nil when no LLM provider is configured; review
// generation then reports itself unavailable.
func reviewGenerator(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) review.Generator {
	provider, err := llm.NewProvider(ctx, cfg.LLM, st, logger)
	if err != nil {
		logger.Warn("review generation disabled", "error", err)
		return nil
	}
	return review.NewLLMGenerator(provider, review.DefaultConfig())
}
