package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// LogConfig configures the zap logger.
type LogConfig struct {
	Level             string `yaml:"level"`
	Encoding          string `yaml:"encoding"`
	Development       bool   `yaml:"development"`
	DisableCaller     bool   `yaml:"disable_caller"`
	DisableStacktrace bool   `yaml:"disable_stacktrace"`
	Sampling          bool   `yaml:"sampling"`
}

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
	Log  LogConfig `yaml:"log"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		Issuer    string        `yaml:"issuer"`
	} `yaml:"auth"`
	Vault struct {
		Owner             string        `yaml:"owner"`
		AssetSymbol       string        `yaml:"asset_symbol"`
		AssetDecimals     int32         `yaml:"asset_decimals"`
		AnalysisInterval  time.Duration `yaml:"analysis_interval"`
		MinInterval       time.Duration `yaml:"min_interval"`
		MaxInterval       time.Duration `yaml:"max_interval"`
		MinTVL            string        `yaml:"min_tvl"` // base units
		SeedModelVersion  string        `yaml:"seed_model_version"`
		SeedModelAccuracy int           `yaml:"seed_model_accuracy"`
		RequestTimeout    time.Duration `yaml:"request_timeout"`
	} `yaml:"vault"`
	Storage struct {
		Driver     string `yaml:"driver"` // sqlite, file or memory
		SQLitePath string `yaml:"sqlite_path"`
		StateFile  string `yaml:"state_file"`
	} `yaml:"storage"`
	Journal struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"journal"`
	Events struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"events"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
		ListKey  string `yaml:"list_key"`
		ListSize int64  `yaml:"list_size"`
	} `yaml:"redis"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Oracle struct {
		Provider      string        `yaml:"provider"` // openai, signal or none
		APIKey        string        `yaml:"api_key"`
		BaseURL       string        `yaml:"base_url"`
		Model         string        `yaml:"model"`
		Timeout       time.Duration `yaml:"timeout"`
		RatePerMinute int           `yaml:"rate_per_minute"`
		Workers       int           `yaml:"workers"`
	} `yaml:"oracle"`
	PriceFeed struct {
		Provider    string `yaml:"provider"` // static, http or yahoo
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		Symbol      string `yaml:"symbol"`
		StaticPrice string `yaml:"static_price"`
	} `yaml:"price_feed"`
	Schedule struct {
		UpkeepCron string `yaml:"upkeep_cron"`
		ExpiryCron string `yaml:"expiry_cron"`
		ReportCron string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Keeper struct {
		Address     string `yaml:"address"`
		AssetType   string `yaml:"asset_type"`
		RiskProfile string `yaml:"risk_profile"`
	} `yaml:"keeper"`
	Custody struct {
		Strict bool              `yaml:"strict"`
		Grants map[string]string `yaml:"grants"` // address -> base units
	} `yaml:"custody"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := map[string]*string{
		"VAULT_HTTP_ADDR":     &c.Server.Addr,
		"VAULT_LOG_LEVEL":     &c.Log.Level,
		"VAULT_JWT_SECRET":    &c.Auth.JWTSecret,
		"VAULT_OWNER":         &c.Vault.Owner,
		"VAULT_MIN_TVL":       &c.Vault.MinTVL,
		"VAULT_STORAGE":       &c.Storage.Driver,
		"SQLITE_PATH":         &c.Storage.SQLitePath,
		"JOURNAL_PATH":        &c.Journal.SQLitePath,
		"REDIS_ADDR":          &c.Redis.Addr,
		"REDIS_PASSWORD":      &c.Redis.Password,
		"TELEGRAM_BOT_TOKEN":  &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":    &c.Telegram.ChatID,
		"ORACLE_PROVIDER":     &c.Oracle.Provider,
		"OPENAI_API_KEY":      &c.Oracle.APIKey,
		"OPENAI_BASE_URL":     &c.Oracle.BaseURL,
		"PRICE_FEED":          &c.PriceFeed.Provider,
		"PRICE_FEED_BASE_URL": &c.PriceFeed.BaseURL,
		"PRICE_FEED_API_KEY":  &c.PriceFeed.APIKey,
		"KEEPER_ADDRESS":      &c.Keeper.Address,
		"CRON_UPKEEP":         &c.Schedule.UpkeepCron,
		"HTTPS_PROXY":         &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("VAULT_ANALYSIS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Vault.AnalysisInterval = d
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("CUSTODY_STRICT"); v != "" {
		c.Custody.Strict = strings.EqualFold(v, "true") || v == "1"
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "aegis-vault"
	}
	if c.Vault.AssetSymbol == "" {
		c.Vault.AssetSymbol = "aRWA"
	}
	if c.Vault.AssetDecimals == 0 {
		c.Vault.AssetDecimals = 18
	}
	if c.Vault.AnalysisInterval == 0 {
		c.Vault.AnalysisInterval = 24 * time.Hour
	}
	if c.Vault.MinInterval == 0 {
		c.Vault.MinInterval = time.Hour
	}
	if c.Vault.MaxInterval == 0 {
		c.Vault.MaxInterval = 7 * 24 * time.Hour
	}
	if c.Vault.MinTVL == "" {
		c.Vault.MinTVL = "10000000000000000000"
	}
	if c.Vault.SeedModelVersion == "" {
		c.Vault.SeedModelVersion = "v1.0"
	}
	if c.Vault.SeedModelAccuracy == 0 {
		c.Vault.SeedModelAccuracy = 85
	}
	if c.Vault.RequestTimeout == 0 {
		c.Vault.RequestTimeout = 15 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/aegis_vault.db"
	}
	if c.Storage.StateFile == "" {
		c.Storage.StateFile = "data/vault_state.json"
	}
	if c.Journal.SQLitePath == "" {
		c.Journal.SQLitePath = "data/aegis_journal.db"
	}
	if c.Events.Buffer == 0 {
		c.Events.Buffer = 1024
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "aegis:observations"
	}
	if c.Redis.ListKey == "" {
		c.Redis.ListKey = "aegis:observations:recent"
	}
	if c.Redis.ListSize == 0 {
		c.Redis.ListSize = 500
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "signal"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4-turbo-preview"
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 15 * time.Second
	}
	if c.Oracle.RatePerMinute == 0 {
		c.Oracle.RatePerMinute = 30
	}
	if c.Oracle.Workers == 0 {
		c.Oracle.Workers = 2
	}
	if c.PriceFeed.Provider == "" {
		c.PriceFeed.Provider = "static"
		if c.PriceFeed.BaseURL != "" {
			c.PriceFeed.Provider = "http"
		}
	}
	if c.PriceFeed.Symbol == "" {
		c.PriceFeed.Symbol = "ETH"
	}
	if c.PriceFeed.StaticPrice == "" {
		c.PriceFeed.StaticPrice = "2500"
	}
	if c.Schedule.UpkeepCron == "" {
		c.Schedule.UpkeepCron = "0 */5 * * * *"
	}
	if c.Schedule.ExpiryCron == "" {
		c.Schedule.ExpiryCron = "30 * * * * *"
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 9 * * *"
	}
	if c.Keeper.AssetType == "" {
		c.Keeper.AssetType = "Real Estate"
	}
	if c.Keeper.RiskProfile == "" {
		c.Keeper.RiskProfile = "Moderate"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Vault.Owner) {
		return fmt.Errorf("vault.owner must be a hex address")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}
	if _, err := c.MinTVL(); err != nil {
		return err
	}
	if c.Vault.MinInterval <= 0 || c.Vault.MaxInterval < c.Vault.MinInterval {
		return fmt.Errorf("vault.min_interval must be positive and not above vault.max_interval")
	}
	if c.Vault.SeedModelAccuracy < 0 || c.Vault.SeedModelAccuracy > 100 {
		return fmt.Errorf("vault.seed_model_accuracy must be within 0..100")
	}
	switch c.Storage.Driver {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite, file or memory")
	}
	switch c.Oracle.Provider {
	case "openai":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle.api_key is required for the openai provider")
		}
	case "signal", "none":
	default:
		return fmt.Errorf("oracle.provider must be openai, signal or none")
	}
	switch c.PriceFeed.Provider {
	case "http":
		if c.PriceFeed.BaseURL == "" {
			return fmt.Errorf("price_feed.base_url is required for the http provider")
		}
	case "static", "yahoo":
	default:
		return fmt.Errorf("price_feed.provider must be static, http or yahoo")
	}
	if c.Keeper.Address != "" && !common.IsHexAddress(c.Keeper.Address) {
		return fmt.Errorf("keeper.address must be a hex address")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	for addr, amount := range c.Custody.Grants {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("custody.grants: %q is not a hex address", addr)
		}
		if v, ok := sdkmath.NewIntFromString(amount); !ok || !v.IsPositive() {
			return fmt.Errorf("custody.grants[%s] must be a positive integer", addr)
		}
	}
	return nil
}

// MinTVL parses vault.min_tvl.
func (c *Config) MinTVL() (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(c.Vault.MinTVL)
	if !ok || v.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("vault.min_tvl must be a non-negative integer")
	}
	return v, nil
}

// OwnerAddress returns vault.owner as an address. Call after Validate.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Vault.Owner)
}

// KeeperAddress returns keeper.address, falling back to the owner.
func (c *Config) KeeperAddress() common.Address {
	if c.Keeper.Address != "" {
		return common.HexToAddress(c.Keeper.Address)
	}
	return c.OwnerAddress()
}
