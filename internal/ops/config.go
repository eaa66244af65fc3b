package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"main/internal/bitget"
	"main/internal/publish"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/state"
	"main/internal/strategy"
)

// FileConfig mirrors the JSON config layout. Money fields are scaled
// integers: quote amounts at four decimals, instrument-scaled values
// per the exchange contract metadata.
type FileConfig struct {
	Exchange    ExchangeConfig  `json:"exchange"`
	Instruments []string        `json:"instruments"`
	Risk        risk.Limits     `json:"risk"`
	Trading     TradingConfig   `json:"trading"`
	Strategy    StrategyConfig  `json:"strategy"`
	Snapshot    SnapshotConfig  `json:"snapshot"`
	Archive     ArchiveConfig   `json:"archive"`
	Publish     PublishConfig   `json:"publish"`
	Profiling   ProfilingConfig `json:"profiling"`
}

// ExchangeConfig points at the exchange endpoints. Credentials come
// from the environment, never from the file.
type ExchangeConfig struct {
	BaseURL      string         `json:"baseUrl"`
	WSPublicURL  string         `json:"wsPublicUrl"`
	WSPrivateURL string         `json:"wsPrivateUrl"`
	ProductType  string         `json:"productType"`
	MarginCoin   string         `json:"marginCoin"`
	Backoff      bitget.Backoff `json:"backoff"`
	QueueSize    int            `json:"queueSize"`
}

// TradingConfig tunes the decision loop.
type TradingConfig struct {
	DecideInterval time.Duration   `json:"decideInterval"`
	MinBalance     schema.Notional `json:"minBalance"`
	CloseOnFlip    bool            `json:"closeOnFlip"`
	StopLossPct    float64         `json:"stopLossPct"`
	TakeProfitPct  float64         `json:"takeProfitPct"`
	ShutdownGrace  time.Duration   `json:"shutdownGrace"`
	SnapshotEvery  time.Duration   `json:"snapshotEvery"`
	CandleInterval string          `json:"candleInterval"`
	CandleCount    int             `json:"candleCount"`
}

// StrategyConfig selects and tunes the decision logic.
type StrategyConfig struct {
	Kind      string                   `json:"kind"` // imbalance | advisor
	Imbalance strategy.ImbalanceConfig `json:"imbalance"`
	Advisor   strategy.AdvisorConfig   `json:"advisor"`
}

// SnapshotConfig controls ledger persistence.
type SnapshotConfig struct {
	Path string `json:"path"`
}

// ArchiveConfig controls the Postgres order archive.
type ArchiveConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// PublishConfig controls the Redis execution publisher.
type PublishConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	DB      int    `json:"db"`
}

// ProfilingConfig controls the optional pyroscope profiler.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	File        FileConfig
	Credentials bitget.Credentials
	ArchiveOpt  state.ArchiveOption
	Redis       publish.Config
}

// Load reads the optional .env file, then the JSON config, validates
// both, and resolves secrets from the environment.
func Load(path string) (Loaded, error) {
	// missing .env is fine; real deployments inject the environment
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		File: cfg,
		Credentials: bitget.Credentials{
			APIKey:     os.Getenv("BITGET_API_KEY"),
			SecretKey:  os.Getenv("BITGET_SECRET_KEY"),
			Passphrase: os.Getenv("BITGET_PASSPHRASE"),
		},
	}
	if loaded.Credentials.APIKey == "" || loaded.Credentials.SecretKey == "" || loaded.Credentials.Passphrase == "" {
		return Loaded{}, fmt.Errorf("BITGET_API_KEY, BITGET_SECRET_KEY and BITGET_PASSPHRASE must be set")
	}

	if cfg.Archive.Enabled {
		loaded.ArchiveOpt = state.ArchiveOption{
			Host:     cfg.Archive.Host,
			Port:     cfg.Archive.Port,
			User:     cfg.Archive.User,
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Database: cfg.Archive.Database,
			SSLMode:  cfg.Archive.SSLMode,
		}
	}
	if cfg.Publish.Enabled {
		loaded.Redis = publish.Config{
			Addr:     cfg.Publish.Addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       cfg.Publish.DB,
		}
	}
	if cfg.Strategy.Kind == "advisor" && loaded.File.Strategy.Advisor.APIKey == "" {
		loaded.File.Strategy.Advisor.APIKey = os.Getenv("LLM_API_KEY")
	}
	return loaded, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Exchange.QueueSize <= 0 {
		cfg.Exchange.QueueSize = 4096
	}
	if cfg.Exchange.Backoff == (bitget.Backoff{}) {
		cfg.Exchange.Backoff = bitget.DefaultBackoff()
	}
	if cfg.Trading.DecideInterval <= 0 {
		cfg.Trading.DecideInterval = time.Minute
	}
	if cfg.Trading.ShutdownGrace <= 0 {
		cfg.Trading.ShutdownGrace = 5 * time.Second
	}
	if cfg.Trading.SnapshotEvery <= 0 {
		cfg.Trading.SnapshotEvery = 30 * time.Second
	}
	if cfg.Trading.CandleInterval == "" {
		cfg.Trading.CandleInterval = "5m"
	}
	if cfg.Trading.CandleCount <= 0 {
		cfg.Trading.CandleCount = 50
	}
	if cfg.Strategy.Kind == "" {
		cfg.Strategy.Kind = "imbalance"
	}
}

func validate(cfg FileConfig) error {
	if len(cfg.Instruments) == 0 {
		return fmt.Errorf("instruments list is empty")
	}
	switch cfg.Strategy.Kind {
	case "imbalance":
	case "advisor":
		if cfg.Strategy.Advisor.BaseURL == "" {
			return fmt.Errorf("strategy.advisor.baseUrl is required")
		}
	default:
		return fmt.Errorf("unknown strategy kind: %s", cfg.Strategy.Kind)
	}
	if cfg.Trading.StopLossPct < 0 || cfg.Trading.StopLossPct >= 100 {
		return fmt.Errorf("trading.stopLossPct out of range: %v", cfg.Trading.StopLossPct)
	}
	if cfg.Trading.TakeProfitPct < 0 {
		return fmt.Errorf("trading.takeProfitPct out of range: %v", cfg.Trading.TakeProfitPct)
	}
	if cfg.Risk.MinOrderInterval < 0 {
		return fmt.Errorf("risk.minOrderInterval must be >= 0")
	}
	if cfg.Archive.Enabled && cfg.Archive.Database == "" {
		return fmt.Errorf("archive.database is required when archive is enabled")
	}
	if cfg.Publish.Enabled && cfg.Publish.Addr == "" {
		return fmt.Errorf("publish.addr is required when publish is enabled")
	}
	if cfg.Profiling.Enabled && cfg.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.serverAddress is required when profiling is enabled")
	}
	return nil
}
