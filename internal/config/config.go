package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot, the mini-app API and supporting services.
type Config struct {
	LogLevel string

	BotToken    string
	BotUsername string
	WebAppURL   string
	MySQLDSN    string

	FreepikAPIKey      string
	FreepikBaseURL     string
	FreepikModel       string
	FreepikResolution  string
	FreepikFilterNSFW  bool
	DefaultAspectRatio string
	RequestTimeout     time.Duration

	PollInterval       time.Duration
	GenerationDeadline time.Duration

	ReconcileSchedule   string
	ReconcileStaleAfter time.Duration

	ChannelUsername    string
	ChannelGateEnabled bool
	MembershipFailOpen bool
	OwnerID            int64
	InitDataMaxAge     time.Duration

	StartBonusCredits    int
	ReferralBonusCredits int
	PromoBonusCredits    int

	HTTPListenAddr     string
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
	SessionTTL         time.Duration

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// MirrorEnabled reports whether completed results are copied into the bucket.
func (c Config) MirrorEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultFreepikBaseURL = "https://api.freepik.com"

	cfg := Config{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		BotUsername:          strings.TrimPrefix(getEnv("BOT_USERNAME", ""), "@"),
		WebAppURL:            getEnv("WEBAPP_URL", ""),
		FreepikBaseURL:       normalizeBaseURL(getEnv("FREEPIK_BASE_URL", defaultFreepikBaseURL), defaultFreepikBaseURL),
		FreepikModel:         getEnv("FREEPIK_MODEL", "realism"),
		FreepikResolution:    getEnv("FREEPIK_RESOLUTION", "2k"),
		FreepikFilterNSFW:    getBool("FREEPIK_FILTER_NSFW", true),
		DefaultAspectRatio:   getEnv("DEFAULT_ASPECT_RATIO", "social_story_9_16"),
		RequestTimeout:       time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		PollInterval:         getDuration("GENERATION_POLL_INTERVAL", 2500*time.Millisecond),
		GenerationDeadline:   getDuration("GENERATION_DEADLINE", 60*time.Second),
		ReconcileSchedule:    getEnv("RECONCILE_SCHEDULE", "@every 1m"),
		ReconcileStaleAfter:  getDuration("RECONCILE_STALE_AFTER", 24*time.Hour),
		ChannelUsername:      normalizeChannelUsername(getEnv("CHANNEL_USERNAME", "")),
		ChannelGateEnabled:   getBool("ENABLE_CHANNEL_GATE", true),
		MembershipFailOpen:   getBool("MEMBERSHIP_FAIL_OPEN", true),
		OwnerID:              getInt64("OWNER_ID", 0),
		InitDataMaxAge:       getDuration("INIT_DATA_MAX_AGE", 24*time.Hour),
		StartBonusCredits:    getInt("START_BONUS_CREDITS", 2),
		ReferralBonusCredits: getInt("REFERRAL_BONUS_CREDITS", 1),
		PromoBonusCredits:    getInt("PROMO_BONUS_CREDITS", 10),
		HTTPListenAddr:       listenAddr(),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerSecond:   getFloat("API_RATE_LIMIT_PER_SECOND", 2),
		RateLimitBurst:       getInt("API_RATE_LIMIT_BURST", 5),
		SessionTTL:           getDuration("SESSION_TTL", 15*time.Minute),
		AdminListenAddr:      getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             os.Getenv("S3_REGION"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:      os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:       getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:             getEnv("S3_PREFIX", "results"),
	}

	cfg.BotToken = getEnv("TELEGRAM_BOT_TOKEN", os.Getenv("BOT_TOKEN"))
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.FreepikAPIKey = os.Getenv("FREEPIK_API_KEY")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.FreepikAPIKey == "" {
		missing = append(missing, "FREEPIK_API_KEY")
	}
	if cfg.ChannelGateEnabled && cfg.ChannelUsername == "" {
		missing = append(missing, "CHANNEL_USERNAME")
	}
	if cfg.MirrorEnabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("GENERATION_POLL_INTERVAL must be positive")
	}
	if cfg.GenerationDeadline < cfg.PollInterval {
		return Config{}, fmt.Errorf("GENERATION_DEADLINE must not be shorter than GENERATION_POLL_INTERVAL")
	}

	return cfg, nil
}

// normalizeBaseURL keeps only scheme and host so endpoint paths resolve against the API root.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}
	if parsed.Host == "" {
		return fallback
	}

	// freepik.com serves the marketing site, the API lives on the api subdomain.
	if parsed.Host == "freepik.com" || parsed.Host == "www.freepik.com" {
		parsed.Host = "api.freepik.com"
	}

	return strings.TrimRight(parsed.String(), "/")
}

func listenAddr() string {
	if v := os.Getenv("HTTP_LISTEN_ADDR"); v != "" {
		return v
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":3000"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// "0"/"1" are what the deploy environment uses for toggles.
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Hosted deployments inject variables directly.
	return nil
}

func normalizeChannelUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimSuffix(username, "/")
	if strings.HasPrefix(username, "http://") || strings.HasPrefix(username, "https://") {
		if parsed, err := url.Parse(username); err == nil {
			username = strings.Trim(parsed.Path, "/")
		}
	}
	username = strings.TrimPrefix(username, "t.me/")
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return ""
	}
	return "@" + username
}
