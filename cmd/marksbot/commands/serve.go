package commands

import (
	"context"
	"fmt"
	"log/slog"
	"marksbot/internal/components/chrono"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/config"
	"marksbot/internal/conversation"
	"marksbot/internal/portal"
	"marksbot/internal/retrieve"
	"marksbot/internal/session"
	"marksbot/internal/telegram"
	"marksbot/internal/usage"
	"marksbot/pkg/serviceutil"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const serviceName = "marksbot"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--config <path/to/marksbot.json5>]",
	Short: "Runs the bot along with the keep-alive http server.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := config.Load(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}

		otel, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := otel.Shutdown(shutdownCtx)
			if err != nil {
				slog.Warn("failed to shutdown telemetry", "err", err)
			}
		}()
		telemetry.InstrumentPerfStats(ctx)

		err = serve(ctx, cfg, telemetry.SlogAPI{})
		if err != nil {
			serviceutil.Fatal("service stopped", err)
		}
	},
}

// newMux serves the liveness probe hosting platforms ping and the metrics.
func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Bot is running!")
	})
	mux.Handle("GET /metrics", telemetry.MetricsHandler())
	return mux
}

func serve(ctx context.Context, cfg config.Config, tel telemetry.API) error {
	bot, err := telegram.NewBot(telegram.BotOptions{
		Token:          cfg.Telegram.Token,
		ApiEndpoint:    cfg.Telegram.ApiEndpoint,
		WorkingSticker: cfg.Telegram.WorkingSticker,
	}, tel)
	if err != nil {
		return err
	}
	slog.Info("authorized bot", "username", bot.Username())

	fetcher := portal.NewFetcher(portal.FetcherOptions{
		Timeout:   cfg.Portal.Timeout(),
		RateLimit: cfg.Portal.RateLimit,
	}, tel)
	crawler, err := portal.NewCrawler(fetcher, portal.CrawlerOptions{
		Endpoint: cfg.Portal.Endpoint,
		BaseUrl:  cfg.Portal.BaseUrl,
	}, tel)
	if err != nil {
		return err
	}
	retriever := retrieve.NewRetriever(retrieve.Options{
		Timeout: cfg.Retrieve.Timeout(),
		Dir:     cfg.Retrieve.Dir,
	}, tel)
	notifier := usage.NewNotifier(usage.NotifierOptions{
		Token:   cfg.Notifier.Token,
		ChatID:  cfg.Notifier.ChatId,
		Timeout: cfg.Notifier.Timeout(),
	}, usage.NewCounter(), tel)
	if !notifier.Enabled() {
		slog.Info("usage notifications disabled")
	}

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		return err
	}
	cronner := chrono.NewStandardCron(clock, tel)
	defer cronner.Stop()

	controller := conversation.NewController(
		bot,
		crawler,
		retriever,
		notifier,
		session.CryptoRandom{},
		conversation.Options{
			Years:            cfg.YearOptions(clock),
			MaxConversations: cfg.Conversations.MaxConversations,
			ConversationTTL:  cfg.Conversations.Ttl(),
		},
		tel,
	)

	if len(cfg.Portal.Years) == 0 {
		// the offered years follow the calendar
		err = cronner.Cron("0 0 1 1 *", func() {
			controller.SetYears(cfg.YearOptions(clock))
		})
		if err != nil {
			return err
		}
	}
	err = cronner.Cron("@every 1m", func() {
		telemetry.ActiveConversations.Set(float64(controller.Conversations()))
	})
	if err != nil {
		return err
	}

	mux := newMux()
	group, ctx := errgroup.WithContext(ctx)

	var webhook *telegram.Webhook
	if cfg.Telegram.WebhookUrl != "" {
		route, err := cfg.Telegram.WebhookPath()
		if err != nil {
			return err
		}
		err = bot.RegisterWebhook(cfg.Telegram.WebhookUrl)
		if err != nil {
			return err
		}
		webhook = bot.WebhookHandler(ctx, controller)
		mux.Handle("POST "+route, webhook)
		slog.Info("receiving updates through webhook", "url", cfg.Telegram.WebhookUrl, "route", route)
	} else {
		group.Go(func() error {
			slog.Info("receiving updates through long polling")
			return bot.Poll(ctx, controller)
		})
	}

	group.Go(func() error {
		return serviceutil.ServeHttp(ctx, cfg.Http.Port, mux)
	})

	err = group.Wait()
	if webhook != nil {
		webhook.Wait()
	}
	notifier.Wait()
	return err
}
