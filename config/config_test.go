package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeEnv(t, `TELEGRAM_BOT_TOKEN=123:abc
ADMIN_CHAT_ID=-1001
STORAGE=Memory
BTC_ADDRESS=1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa
ETH_ADDRESS=0x4c2bba6f32aa4b804c43dd25c4c3c311dd8016cf
USDT_ADDRESS=TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramBotToken)
	assert.Equal(t, int64(-1001), cfg.AdminChatID)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := writeEnv(t, "STORAGE=memory\nHTTP_ADDR=:9000\n")
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
}

func TestLoadConfig_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("STORAGE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
}

func TestValidate(t *testing.T) {
	base := Config{Storage: StorageMemory}
	require.NoError(t, base.Validate())

	cases := map[string]Config{
		"postgres without url": {Storage: StoragePostgres},
		"unknown storage":      {Storage: "s3"},
		"admin without hash":   {Storage: StorageMemory, AdminEmail: "a@x.com", JWTSecret: "s"},
		"admin without secret": {Storage: StorageMemory, AdminEmail: "a@x.com", AdminPasswordHash: "h"},
		"bad bitcoin address":  {Storage: StorageMemory, BTCAddress: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb"},
		"testnet bitcoin":      {Storage: StorageMemory, BTCAddress: "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"},
		"short ethereum":       {Storage: StorageMemory, ETHAddress: "0x1234"},
		"bitcoin as usdt":      {Storage: StorageMemory, USDTAddress: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
		"garbage tron address": {Storage: StorageMemory, USDTAddress: "T-not-base58"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}
}
