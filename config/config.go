package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Broker credentials (tick feed + historical data)
	BrokerAPIKey     string
	BrokerClientCode string
	BrokerPassword   string
	BrokerTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string

	// Subscription
	SubscribeKeys string

	// Analysis timeframes (comma-separated seconds, e.g. "60,180,300,900")
	EnabledTFs string

	// Indicator settings
	ShortEmaLength        int
	LongEmaLength         int
	RsiPeriod             int
	RsiDivergenceLookback int
	AtrPeriod             int

	// Signal settings
	VolumeHistoryLength   int
	VolumeBurstMultiplier float64
	IvSpikeThreshold      float64
	VwapUpperBandMult     float64
	VwapLowerBandMult     float64
	GammaThreshold        float64
	MinConvictionScore    int

	// Thesis settings (configuration-capable constants, not hard-coded)
	SignalDebounce time.Duration
	OpeningDamping float64

	// Pipeline settings
	TickStaleness time.Duration

	// Profile settings
	ProfileTickSize int // quantization step in paise
	BackfillDays    int // prior sessions fetched for structure context

	// Extra exchange holidays, comma-separated "2006-01-02" dates
	MarketHolidays string

	// Session bounds, "HH:MM" in IST
	MarketOpen  string
	MarketClose string

	// Alert delivery (empty disables the backend)
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		BrokerAPIKey:     getEnv("BROKER_API_KEY", ""),
		BrokerClientCode: getEnv("BROKER_CLIENT_CODE", ""),
		BrokerPassword:   getEnv("BROKER_PASSWORD", ""),
		BrokerTOTPSecret: getEnv("BROKER_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/analysis.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),

		// Default: NIFTY 50 index on NSE
		SubscribeKeys: getEnv("SUBSCRIBE_KEYS", "NSE:26000"),

		// Default TFs: 1m, 3m, 5m, 15m
		EnabledTFs: getEnv("ENABLED_TFS", "60,180,300,900"),

		ShortEmaLength:        getEnvInt("SHORT_EMA_LENGTH", 9),
		LongEmaLength:         getEnvInt("LONG_EMA_LENGTH", 21),
		RsiPeriod:             getEnvInt("RSI_PERIOD", 14),
		RsiDivergenceLookback: getEnvInt("RSI_DIVERGENCE_LOOKBACK", 14),
		AtrPeriod:             getEnvInt("ATR_PERIOD", 14),

		VolumeHistoryLength:   getEnvInt("VOLUME_HISTORY_LENGTH", 20),
		VolumeBurstMultiplier: getEnvFloat("VOLUME_BURST_MULTIPLIER", 2.0),
		IvSpikeThreshold:      getEnvFloat("IV_SPIKE_THRESHOLD", 0.02),
		VwapUpperBandMult:     getEnvFloat("VWAP_UPPER_BAND_MULT", 2.0),
		VwapLowerBandMult:     getEnvFloat("VWAP_LOWER_BAND_MULT", 2.0),
		GammaThreshold:        getEnvFloat("GAMMA_THRESHOLD", 0.5),
		MinConvictionScore:    getEnvInt("MIN_CONVICTION_SCORE", 3),

		SignalDebounce: getEnvDuration("SIGNAL_DEBOUNCE", 60*time.Second),
		OpeningDamping: getEnvFloat("OPENING_DAMPING", 0.5),

		TickStaleness: getEnvDuration("TICK_STALENESS", 15*time.Second),

		ProfileTickSize: getEnvInt("PROFILE_TICK_SIZE", 5),
		BackfillDays:    getEnvInt("BACKFILL_DAYS", 3),

		MarketHolidays: getEnv("MARKET_HOLIDAYS", ""),
		MarketOpen:     getEnv("MARKET_OPEN", "09:15"),
		MarketClose:    getEnv("MARKET_CLOSE", "15:30"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe durations in seconds.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseKeys splits the SubscribeKeys list into individual instrument keys.
func (c *Config) ParseKeys() []string {
	parts := strings.Split(c.SubscribeKeys, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// ParseHolidays splits the MarketHolidays list into date strings.
func (c *Config) ParseHolidays() []string {
	parts := strings.Split(c.MarketHolidays, ",")
	dates := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			dates = append(dates, p)
		}
	}
	return dates
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
