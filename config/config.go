package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

// tronVersion is the base58check version byte of TRON main-net addresses.
const tronVersion = 0x41

var ethAddress = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type Config struct {
	TelegramBotToken  string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID       int64  `mapstructure:"ADMIN_CHAT_ID"`
	AdminEmail        string `mapstructure:"ADMIN_EMAIL"`
	AdminPasswordHash string `mapstructure:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`

	Storage       string `mapstructure:"STORAGE"`
	DB_URL        string `mapstructure:"DB_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	HTTPAddr      string `mapstructure:"HTTP_ADDR"`

	BTCAddress  string `mapstructure:"BTC_ADDRESS"`
	ETHAddress  string `mapstructure:"ETH_ADDRESS"`
	USDTAddress string `mapstructure:"USDT_ADDRESS"`

	RatesURL       string `mapstructure:"RATES_URL"`
	CryptoRatesURL string `mapstructure:"CRYPTO_RATES_URL"`
}

var defaults = map[string]interface{}{
	"TELEGRAM_BOT_TOKEN":  "",
	"ADMIN_CHAT_ID":       0,
	"ADMIN_EMAIL":         "",
	"ADMIN_PASSWORD_HASH": "",
	"JWT_SECRET":          "",
	"LOG_LEVEL":           "info",
	"STORAGE":             StoragePostgres,
	"DB_URL":              "",
	"REDIS_ADDR":          "localhost:6379",
	"REDIS_PASSWORD":      "",
	"HTTP_ADDR":           ":8080",
	"BTC_ADDRESS":         "",
	"ETH_ADDRESS":         "",
	"USDT_ADDRESS":        "",
	"RATES_URL":           "",
	"CRYPTO_RATES_URL":    "",
}

// LoadConfig reads the env file at path, then lets the process environment
// override it. A missing file is fine when everything comes from the environment.
func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(filepath.Dir(absPath))
	v.SetConfigName(filepath.Base(absPath))
	v.SetConfigType("env")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	config.Storage = strings.ToLower(strings.TrimSpace(config.Storage))
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DB_URL == "" {
			return errors.New("DB_URL is required for postgres storage")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for redis storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if c.AdminEmail != "" {
		if c.AdminPasswordHash == "" {
			return errors.New("ADMIN_PASSWORD_HASH is required when ADMIN_EMAIL is set")
		}
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required when ADMIN_EMAIL is set")
		}
	}

	if c.BTCAddress != "" {
		if err := ValidateBitcoinAddress(c.BTCAddress); err != nil {
			return fmt.Errorf("BTC_ADDRESS: %w", err)
		}
	}
	if c.ETHAddress != "" && !ethAddress.MatchString(c.ETHAddress) {
		return fmt.Errorf("ETH_ADDRESS: %q is not a 0x-prefixed 20 byte hex address", c.ETHAddress)
	}
	if c.USDTAddress != "" {
		if err := ValidateTronAddress(c.USDTAddress); err != nil {
			return fmt.Errorf("USDT_ADDRESS: %w", err)
		}
	}
	return nil
}

// ValidateBitcoinAddress accepts any main-net address btcutil can decode.
func ValidateBitcoinAddress(addr string) error {
	decoded, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams)
	if err != nil {
		return fmt.Errorf("invalid bitcoin address: %w", err)
	}
	if !decoded.IsForNet(&chaincfg.MainNetParams) {
		return fmt.Errorf("%s is not a main-net address", addr)
	}
	return nil
}

// ValidateTronAddress checks a TRC-20 deposit address: base58check, version
// 0x41, 20 byte payload.
func ValidateTronAddress(addr string) error {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return fmt.Errorf("invalid tron address: %w", err)
	}
	if version != tronVersion || len(payload) != 20 {
		return fmt.Errorf("%s is not a tron main-net address", addr)
	}
	return nil
}
