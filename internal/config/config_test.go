package config

import (
	"marksbot/internal/components/chrono"
	"marksbot/internal/portal"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testConfig = `{
	// comments are allowed
	telegram: {
		token: "from-file",
		working_sticker: "sticker-id",
	},
	http: { port: 8080 },
	portal: {
		timeout_seconds: 20,
		years: ["2025", "2024"],
	},
	conversations: { max_conversations: 10, ttl_minutes: 30 },
}`

func writeConfig(t testing.TB, contents map[string]string) string {
	dir := t.TempDir()
	for name, content := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return filepath.Join(dir, "marksbot.json5")
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"TELEGRAM_TOKEN", "WEBHOOK_URL", "ANOTHER_BOT_TOKEN", "ANOTHER_BOT_CHAT_ID", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, map[string]string{
		"marksbot.json5":       testConfig,
		"marksbot.local.json5": `{ http: { port: 9090 } }`,
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.Telegram.Token)
	require.Equal(t, "sticker-id", cfg.Telegram.WorkingSticker)
	require.Equal(t, 9090, cfg.Http.Port)
	require.Equal(t, 20*time.Second, cfg.Portal.Timeout())
	require.Equal(t, 30*time.Minute, cfg.Conversations.Ttl())
	require.Equal(t, portal.Endpoint, cfg.Portal.Endpoint)
	require.Equal(t, portal.BaseUrl, cfg.Portal.BaseUrl)
	require.Equal(t, []portal.Option{
		{Label: "2025", Value: "2025"},
		{Label: "2024", Value: "2024"},
	}, cfg.YearOptions(chrono.FixedImpl{Time: time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)}))
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("ANOTHER_BOT_TOKEN", "notify")
	t.Setenv("ANOTHER_BOT_CHAT_ID", "819")
	t.Setenv("PORT", "7000")
	t.Setenv("WEBHOOK_URL", "https://marks.example.org/webhook")

	path := writeConfig(t, map[string]string{"marksbot.json5": testConfig})
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Telegram.Token)
	require.Equal(t, "https://marks.example.org/webhook", cfg.Telegram.WebhookUrl)
	require.Equal(t, "notify", cfg.Notifier.Token)
	require.Equal(t, "819", cfg.Notifier.ChatId)
	require.Equal(t, 7000, cfg.Http.Port)
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "only-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "marksbot.json5"))
	require.NoError(t, err)
	require.Equal(t, "only-env", cfg.Telegram.Token)
	require.Equal(t, defaultPort, cfg.Http.Port)

	years := cfg.YearOptions(chrono.FixedImpl{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.Len(t, years, 6)
	require.Equal(t, "2026", years[0].Value)
	require.Equal(t, "2021", years[5].Value)
}

func TestLoadInvalid(t *testing.T) {
	cases := []struct {
		name   string
		env    map[string]string
		config string
	}{
		{name: "missing token", config: `{}`},
		{
			name:   "bad port",
			env:    map[string]string{"TELEGRAM_TOKEN": "x", "PORT": "eighty"},
			config: `{}`,
		},
		{
			name:   "notifier without chat",
			env:    map[string]string{"TELEGRAM_TOKEN": "x", "ANOTHER_BOT_TOKEN": "y"},
			config: `{}`,
		},
		{
			name:   "bad webhook url",
			config: `{ telegram: { token: "x", webhook_url: "not a url" } }`,
		},
		{
			name:   "webhook url without path",
			config: `{ telegram: { token: "x", webhook_url: "https://marks.example.org" } }`,
		},
		{
			name:   "webhook url at root",
			config: `{ telegram: { token: "x", webhook_url: "https://marks.example.org/" } }`,
		},
		{
			name:   "non numeric year",
			config: `{ telegram: { token: "x" }, portal: { years: ["last"] } }`,
		},
		{
			name:   "malformed file",
			config: `{ telegram: `,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			clearEnv(t)
			for key, value := range test.env {
				t.Setenv(key, value)
			}
			path := writeConfig(t, map[string]string{"marksbot.json5": test.config})
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestWebhookPath(t *testing.T) {
	cases := []struct {
		url  string
		path string
	}{
		{url: "https://marks.example.org/webhook", path: "/webhook"},
		{url: "https://marks.example.org/bot/updates?secret=1", path: "/bot/updates"},
		{url: "https://marks.example.org:8443/hooks/marks%20bot", path: "/hooks/marks%20bot"},
	}
	for _, test := range cases {
		path, err := TelegramConfig{WebhookUrl: test.url}.WebhookPath()
		require.NoError(t, err, test.url)
		require.Equal(t, test.path, path)
	}

	_, err := TelegramConfig{WebhookUrl: "https://marks.example.org"}.WebhookPath()
	require.ErrorIs(t, err, errWebhookPath)
}
