package config

import (
	"errors"
	"fmt"
	"marksbot/internal/components/chrono"
	"marksbot/internal/components/telemetry"
	"marksbot/internal/portal"
	"marksbot/pkg/configutil"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type TelegramConfig struct {
	Token string `json:"token" validate:"required"`
	// ApiEndpoint is a format string taking the token and the method.
	ApiEndpoint    string `json:"api_endpoint"`
	WorkingSticker string `json:"working_sticker"`
	// WebhookUrl switches the bot from long polling to webhooks when set.
	WebhookUrl string `json:"webhook_url" validate:"omitempty,url"`
}

type NotifierConfig struct {
	Token          string `json:"token"`
	ChatId         string `json:"chat_id" validate:"required_with=Token"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"gte=0"`
}

type HttpConfig struct {
	Port int `json:"port" validate:"gte=1,lte=65535"`
}

type PortalConfig struct {
	Endpoint       string  `json:"endpoint" validate:"omitempty,url"`
	BaseUrl        string  `json:"base_url" validate:"omitempty,url"`
	TimeoutSeconds int     `json:"timeout_seconds" validate:"gte=0"`
	RateLimit      float64 `json:"rate_limit" validate:"gte=0"`
	// Years overrides the offered years, newest first.
	Years []string `json:"years" validate:"dive,numeric"`
}

type RetrieveConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds" validate:"gte=0"`
	Dir            string `json:"dir"`
}

type ConversationConfig struct {
	MaxConversations int `json:"max_conversations" validate:"gte=0"`
	TtlMinutes       int `json:"ttl_minutes" validate:"gte=0"`
}

type Config struct {
	Telegram      TelegramConfig     `json:"telegram"`
	Notifier      NotifierConfig     `json:"notifier"`
	Http          HttpConfig         `json:"http"`
	Portal        PortalConfig       `json:"portal"`
	Retrieve      RetrieveConfig     `json:"retrieve"`
	Conversations ConversationConfig `json:"conversations"`
	Telemetry     telemetry.Config   `json:"telemetry"`
}

const (
	defaultPort      = 5000
	defaultYearCount = 6
)

// Load reads the config file at path (a missing file is not an error), then
// .env and the process environment on top of it.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	_ = godotenv.Load()

	err = ApplyEnv(&cfg, os.Getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.SetDefaults()

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with whatever is set in the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := getenv("WEBHOOK_URL"); v != "" {
		cfg.Telegram.WebhookUrl = v
	}
	if v := getenv("ANOTHER_BOT_TOKEN"); v != "" {
		cfg.Notifier.Token = v
	}
	if v := getenv("ANOTHER_BOT_CHAT_ID"); v != "" {
		cfg.Notifier.ChatId = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Http.Port = port
	}
	return nil
}

func (c *Config) SetDefaults() {
	if c.Http.Port == 0 {
		c.Http.Port = defaultPort
	}
	if c.Portal.Endpoint == "" {
		c.Portal.Endpoint = portal.Endpoint
	}
	if c.Portal.BaseUrl == "" {
		c.Portal.BaseUrl = portal.BaseUrl
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Telegram.WebhookUrl != "" {
		_, err = c.Telegram.WebhookPath()
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

var errWebhookPath = errors.New("webhook url must have a path other than /")

// WebhookPath is the path the webhook is served at, taken from WebhookUrl.
func (c TelegramConfig) WebhookPath() (string, error) {
	parsed, err := url.Parse(c.WebhookUrl)
	if err != nil {
		return "", fmt.Errorf("webhook url: %w", err)
	}
	path := parsed.EscapedPath()
	if path == "" || path == "/" {
		return "", errWebhookPath
	}
	return path, nil
}

// YearOptions returns the configured years, or the current year and the
// ones before it when none are configured.
func (c Config) YearOptions(clock chrono.API) []portal.Option {
	if len(c.Portal.Years) == 0 {
		return portal.Years(clock.Now().Year(), defaultYearCount)
	}
	options := make([]portal.Option, len(c.Portal.Years))
	for i, year := range c.Portal.Years {
		options[i] = portal.Option{Label: year, Value: year}
	}
	return options
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c PortalConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

func (c RetrieveConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

func (c NotifierConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

func (c ConversationConfig) Ttl() time.Duration {
	return time.Duration(c.TtlMinutes) * time.Minute
}
