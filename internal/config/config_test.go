package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_ENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/bot?parseTime=true")
	t.Setenv("FREEPIK_API_KEY", "fp-key")
	t.Setenv("CHANNEL_USERNAME", "gurenko_kristina_ai")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.freepik.com", cfg.FreepikBaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.GenerationDeadline)
	assert.Equal(t, "@gurenko_kristina_ai", cfg.ChannelUsername)
	assert.True(t, cfg.ChannelGateEnabled)
	assert.True(t, cfg.MembershipFailOpen)
	assert.Equal(t, 2, cfg.StartBonusCredits)
	assert.Equal(t, 1, cfg.ReferralBonusCredits)
	assert.Equal(t, ":3000", cfg.HTTPListenAddr)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.MirrorEnabled())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "10000")
	t.Setenv("MEMBERSHIP_FAIL_OPEN", "0")
	t.Setenv("ENABLE_CHANNEL_GATE", "false")
	t.Setenv("GENERATION_POLL_INTERVAL", "1s")
	t.Setenv("GENERATION_DEADLINE", "70s")
	t.Setenv("OWNER_ID", "42")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":10000", cfg.HTTPListenAddr)
	assert.False(t, cfg.MembershipFailOpen)
	assert.False(t, cfg.ChannelGateEnabled)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 70*time.Second, cfg.GenerationDeadline)
	assert.Equal(t, int64(42), cfg.OwnerID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "BOT_TOKEN", "MYSQL_DSN", "FREEPIK_API_KEY", "CHANNEL_USERNAME", "S3_BUCKET"} {
		t.Setenv(key, "")
	}

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
	assert.Contains(t, err.Error(), "MYSQL_DSN")
	assert.Contains(t, err.Error(), "FREEPIK_API_KEY")
	assert.Contains(t, err.Error(), "CHANNEL_USERNAME")
}

func TestLoadRejectsDeadlineShorterThanInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("GENERATION_POLL_INTERVAL", "10s")
	t.Setenv("GENERATION_DEADLINE", "5s")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.env")
	require.NoError(t, os.WriteFile(path, []byte("FREEPIK_MODEL=fluid\nSTART_BONUS_CREDITS=5\n"), 0o600))
	setRequired(t)
	t.Setenv("CONFIG_ENV_PATH", path)
	t.Setenv("FREEPIK_MODEL", "")
	t.Setenv("START_BONUS_CREDITS", "")
	os.Unsetenv("FREEPIK_MODEL")
	os.Unsetenv("START_BONUS_CREDITS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fluid", cfg.FreepikModel)
	assert.Equal(t, 5, cfg.StartBonusCredits)
}

func TestNormalizeBaseURL(t *testing.T) {
	fallback := "https://api.freepik.com"
	assert.Equal(t, fallback, normalizeBaseURL("", fallback))
	assert.Equal(t, "https://api.freepik.com", normalizeBaseURL("freepik.com", fallback))
	assert.Equal(t, "http://localhost:9000", normalizeBaseURL("http://localhost:9000/", fallback))
}

func TestNormalizeChannelUsername(t *testing.T) {
	assert.Equal(t, "@chan", normalizeChannelUsername("chan"))
	assert.Equal(t, "@chan", normalizeChannelUsername("@chan"))
	assert.Equal(t, "@chan", normalizeChannelUsername("https://t.me/chan/"))
	assert.Equal(t, "@chan", normalizeChannelUsername("t.me/chan"))
	assert.Equal(t, "", normalizeChannelUsername("  "))
}
