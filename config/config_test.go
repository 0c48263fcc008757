package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Driver: "postgres"},
		Auth:     AuthConfig{JWTSecret: "test-secret-key-for-unit-testing"},
		CheckIn:  CheckInConfig{StoreTimeout: time.Second, BulkWriteLimit: 400},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("期望校验通过，实际: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"空密钥", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"短密钥", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"端口越界", func(c *Config) { c.Server.Port = 70000 }},
		{"未知驱动", func(c *Config) { c.Database.Driver = "mysql" }},
		{"超时为零", func(c *Config) { c.CheckIn.StoreTimeout = 0 }},
		{"写入组过小", func(c *Config) { c.CheckIn.BulkWriteLimit = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("期望校验失败")
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
db:
  driver: sqlite
  sqlite_path: /tmp/gatepass-test.db
auth:
  jwt_secret: file-secret-0123456789
checkin:
  bulk_write_limit: 50
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	t.Setenv("GATEPASS_CHECKIN_STORE_TIMEOUT", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("期望 port=9090，实际=%d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("期望 driver=sqlite，实际=%s", cfg.Database.Driver)
	}
	if cfg.CheckIn.BulkWriteLimit != 50 {
		t.Errorf("期望 bulk_write_limit=50，实际=%d", cfg.CheckIn.BulkWriteLimit)
	}
	if cfg.CheckIn.StoreTimeout != 2*time.Second {
		t.Errorf("期望环境变量覆盖 store_timeout=2s，实际=%s", cfg.CheckIn.StoreTimeout)
	}
	if cfg.CheckIn.QRSchemaVersion != 1 {
		t.Errorf("期望默认 qr_schema_version=1，实际=%d", cfg.CheckIn.QRSchemaVersion)
	}
}
