package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	Journal   JournalConfig   `yaml:"journal"`
	Trade     TradeConfig     `yaml:"trade"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Subaccount string        `yaml:"subaccount"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type JournalConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// TradeConfig parameterizes one delta-neutral round trip.
type TradeConfig struct {
	Underlier       string        `yaml:"underlier"`
	Size            float64       `yaml:"size"`
	Mode            string        `yaml:"mode"`       // maker | market
	Escalation      string        `yaml:"escalation"` // market | reprice
	PriceOffsetBps  float64       `yaml:"price_offset_bps"`
	PriceBump       float64       `yaml:"price_bump"`
	ForceLongSpot   *bool         `yaml:"force_long_spot"`
	MonitorTimeout  time.Duration `yaml:"monitor_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	RepriceInterval time.Duration `yaml:"reprice_interval"`
	Hold            time.Duration `yaml:"hold"`
	FillLag         time.Duration `yaml:"fill_lag"`
	MaxNotionalUSD  float64       `yaml:"max_notional_usd"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

const (
	ModeMaker  = "maker"
	ModeMarket = "market"

	EscalationMarket  = "market"
	EscalationReprice = "reprice"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://ftx.com/api"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://ftx.com/ws/"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 15 * time.Second
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = "data/dn-arb-bot.db"
	}
	if cfg.Trade.Mode == "" {
		cfg.Trade.Mode = ModeMaker
	}
	if cfg.Trade.Escalation == "" {
		cfg.Trade.Escalation = EscalationMarket
	}
	if cfg.Trade.PriceOffsetBps == 0 {
		cfg.Trade.PriceOffsetBps = 5
	}
	if cfg.Trade.PriceBump == 0 {
		cfg.Trade.PriceBump = 0.05
	}
	if cfg.Trade.ForceLongSpot == nil {
		forced := true
		cfg.Trade.ForceLongSpot = &forced
	}
	if cfg.Trade.MonitorTimeout == 0 {
		cfg.Trade.MonitorTimeout = 100 * time.Second
	}
	if cfg.Trade.PollInterval == 0 {
		cfg.Trade.PollInterval = time.Second
	}
	if cfg.Trade.RepriceInterval == 0 {
		cfg.Trade.RepriceInterval = 2 * time.Second
	}
	if cfg.Trade.Hold == 0 {
		cfg.Trade.Hold = 10 * time.Second
	}
	if cfg.Trade.FillLag == 0 {
		cfg.Trade.FillLag = 2 * time.Second
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
}

func applyEnvOverrides(cfg *Config) {
	if token := strings.TrimSpace(os.Getenv("DN_TELEGRAM_TOKEN")); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := strings.TrimSpace(os.Getenv("DN_TELEGRAM_CHAT_ID")); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if sub := strings.TrimSpace(os.Getenv("FTX_SUBACCOUNT")); sub != "" {
		cfg.REST.Subaccount = sub
	}
}

func validate(cfg *Config) error {
	if cfg.Trade.Underlier == "" {
		return errors.New("trade.underlier is required")
	}
	if cfg.Trade.Size <= 0 {
		return errors.New("trade.size must be > 0")
	}
	if cfg.Trade.Mode != ModeMaker && cfg.Trade.Mode != ModeMarket {
		return errors.New("trade.mode must be maker or market")
	}
	if cfg.Trade.Escalation != EscalationMarket && cfg.Trade.Escalation != EscalationReprice {
		return errors.New("trade.escalation must be market or reprice")
	}
	if cfg.Trade.PriceOffsetBps < 0 {
		return errors.New("trade.price_offset_bps must be >= 0")
	}
	if cfg.Trade.PriceBump < 0 {
		return errors.New("trade.price_bump must be >= 0")
	}
	if cfg.Trade.MonitorTimeout <= 0 {
		return errors.New("trade.monitor_timeout must be > 0")
	}
	if cfg.Trade.PollInterval <= 0 {
		return errors.New("trade.poll_interval must be > 0")
	}
	if cfg.Trade.RepriceInterval <= 0 {
		return errors.New("trade.reprice_interval must be > 0")
	}
	if cfg.Trade.Hold < 0 {
		return errors.New("trade.hold must be >= 0")
	}
	if cfg.Trade.FillLag < 0 {
		return errors.New("trade.fill_lag must be >= 0")
	}
	if cfg.Trade.MaxNotionalUSD < 0 {
		return errors.New("trade.max_notional_usd must be >= 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
