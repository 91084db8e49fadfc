package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/access"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/billing"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/handlers"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/middleware"
	"github.com/BatmanBruc/olymp-quiz-bot/internal/quiz"
	"github.com/BatmanBruc/olymp-quiz-bot/store"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (long polling)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.BotToken == "" {
		return errors.New("BOT_TOKEN is not set")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pg, err := openPostgres(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer pg.Close()

	rdb, err := store.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	if err != nil {
		return err
	}
	defer rdb.Close()
	sessions := store.NewRedisSessionStore(rdb, cfg.Redis.SessionTTLHours)

	policy := cfg.Policy()
	billingSvc := billing.NewService(pg, log)
	roles := access.NewService(pg, cfg.AdminIDs, log)
	quizSvc := quiz.NewService(pg, pg, sessions, billingSvc, quiz.Config{
		Location:   cfg.Location,
		DailyLimit: cfg.DailyLimit,
	}, log)

	h := handlers.NewHandlers(handlers.Deps{
		Quiz:        quizSvc,
		Account:     billingSvc,
		Live:        billing.NewLiveAdapter(billingSvc, policy, log),
		Test:        billing.NewTestAdapter(billingSvc, policy, roles, log),
		Roles:       roles,
		Admin:       pg,
		Leaderboard: pg,
		Sessions:    sessions,
		Policy:      policy,
		Log:         log,
	})
	middlewares := middleware.NewMessageAnalyzer(pg, log)

	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
		bot.WithErrorsHandler(func(err error) {
			log.Error("telegram api error", "error", err)
		}),
	)
	if err != nil {
		return err
	}

	handlerChain := middlewares.UpsertUserMiddleware(
		middlewares.AnalyzeMessageMiddleware(
			h.MainHandler,
		),
	)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.PreCheckoutQuery != nil
	}, handlerChain)

	log.Info("bot started",
		"timezone", cfg.Timezone,
		"monetization", policy.MonetizationEnabled,
		"test_mode", policy.TestMode,
	)
	b.Start(ctx)
	log.Info("bot stopped")
	return nil
}
