package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/vocabreview/internal/ai"
	"github.com/example/vocabreview/internal/bot"
	"github.com/example/vocabreview/internal/config"
	"github.com/example/vocabreview/internal/database"
	"github.com/example/vocabreview/internal/excel"
	"github.com/example/vocabreview/internal/logger"
	"github.com/example/vocabreview/internal/monitoring"
	"github.com/example/vocabreview/internal/pronunciation"
	"github.com/example/vocabreview/internal/scheduler"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "vocabreview",
		Short:         "Spaced review of Chinese vocabulary over Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "path to an optional .env file")

	load := func() (*config.Config, *zap.Logger, *sqlx.DB, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, nil, nil, err
		}
		log := logger.New(cfg.App.LogFile, cfg.Debug())
		db, err := database.Connect(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			log.Sync()
			return nil, nil, nil, err
		}
		return cfg, log, db, nil
	}

	root.AddCommand(botCmd(load), importCmd(load), levelsCmd(load))
	return root
}

type loader func() (*config.Config, *zap.Logger, *sqlx.DB, error)

func botCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot, reminders and the metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, db, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, log, db)
		},
	}
}

func runBot(ctx context.Context, cfg *config.Config, log *zap.Logger, db *sqlx.DB) error {
	api, err := bot.NewAPI(cfg.Telegram.Token, cfg.Debug())
	if err != nil {
		return err
	}
	log.Info("authorized on account", zap.String("username", api.Self.UserName))

	items := database.NewItemRepository(db)
	settings := database.NewSettingsRepository(db, cfg.Review.DefaultSessionSize)
	masteryRepo := database.NewMasteryRepository(db)

	deps := bot.Deps{
		Items:    items,
		Settings: settings,
		Results:  database.NewResultRepository(db),
		Mastery:  masteryRepo,
		Judge: ai.NewTranslationJudge(ai.Config{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
		}, log),
		Logger: log,
	}
	if cfg.Pinyin.URL != "" {
		deps.Assessor = pronunciation.NewHTTPAssessor(pronunciation.Config{
			URL:               cfg.Pinyin.URL,
			RequestsPerSecond: cfg.Pinyin.RPS,
		}, log)
	} else {
		log.Warn("PINYIN_API_URL is not set, speaking mode disabled")
	}

	botCfg := bot.DefaultConfig()
	botCfg.DistractorCount = cfg.Review.DistractorCount
	botCfg.ReviewedSubsetThreshold = cfg.Review.ReviewedSubsetThreshold
	botCfg.WindowFactor = cfg.Review.TopPoolFactor
	botCfg.DueUrgency = cfg.Reminder.Urgency
	b := bot.New(api, botCfg, deps)
	defer b.Close()

	sched := scheduler.New(scheduler.Config{
		StartHour:  cfg.Reminder.StartHour,
		EndHour:    cfg.Reminder.EndHour,
		MinUrgency: cfg.Reminder.Urgency,
		Location:   time.Local,
	}, b, settings, items, masteryRepo, log)
	b.SetDueChecker(sched)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if err := monitoring.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := api.GetUpdatesChan(u)
		go func() {
			<-gctx.Done()
			api.StopReceivingUpdates()
		}()
		return b.Run(gctx, updates)
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux()}
		g.Go(func() error {
			log.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	return mux
}

func importCmd(load loader) *cobra.Command {
	importCfg := excel.DefaultImportConfig()
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import vocabulary from an .xlsx, .csv or .json file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer db.Close()

			importCfg.FilePath = args[0]
			res, err := excel.ImportItems(cmd.Context(), importCfg, database.NewItemRepository(db))
			if err != nil {
				return err
			}
			log.Info("import finished",
				zap.String("file", importCfg.FilePath),
				zap.Int("level", importCfg.Level),
				zap.Int("processed", res.TotalProcessed),
				zap.Int("created", res.Created),
				zap.Int("updated", res.Updated),
				zap.Int("skipped", res.Skipped))
			for _, e := range res.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d updated, %d skipped, %d errors\n",
				res.Created, res.Updated, res.Skipped, len(res.Errors))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&importCfg.Level, "level", importCfg.Level, "level to import into (0 is the custom deck)")
	f.StringVar(&importCfg.SheetName, "sheet", "", "sheet name, defaults to the first sheet")
	f.IntVar(&importCfg.StartRow, "start-row", importCfg.StartRow, "first data row (1-based)")
	f.StringVar(&importCfg.TextColumn, "text-col", importCfg.TextColumn, "column with the character")
	f.StringVar(&importCfg.PronunciationColumn, "pinyin-col", importCfg.PronunciationColumn, "column with the pinyin")
	f.StringVar(&importCfg.MeaningColumn, "meaning-col", importCfg.MeaningColumn, "column with the meaning")
	f.StringVar(&importCfg.ExplanationColumn, "explanation-col", importCfg.ExplanationColumn, "column with the explanation")
	f.StringVar(&importCfg.IDColumn, "id-col", "", "column with a stable id, defaults to the text")
	return cmd
}

func levelsCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "List item counts per level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, db, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer db.Close()

			counts, err := database.NewItemRepository(db).CountByLevel(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range counts {
				fmt.Fprintf(cmd.OutOrStdout(), "level %d\t%d items\n", c.Level, c.Count)
			}
			return nil
		},
	}
}
