package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
registry:
  max_owned: 2
  context_tag: "iot-auth"
  store: "memory"
  round_interval: 2s
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
etcd:
  endpoints: ["10.0.0.1:2379", "10.0.0.2:2379"]
api:
  port: 9000
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.MaxOwned != 2 {
		t.Errorf("Registry.MaxOwned = %d, want 2", cfg.Registry.MaxOwned)
	}
	if cfg.Registry.ContextTag != "iot-auth" {
		t.Errorf("Registry.ContextTag = %q, want %q", cfg.Registry.ContextTag, "iot-auth")
	}
	if cfg.Registry.Store != StoreMemory {
		t.Errorf("Registry.Store = %q, want %q", cfg.Registry.Store, StoreMemory)
	}
	if cfg.Registry.RoundInterval != 2*time.Second {
		t.Errorf("Registry.RoundInterval = %v, want 2s", cfg.Registry.RoundInterval)
	}
	// Unset fields keep their defaults.
	if cfg.Registry.EventBuffer != 1024 {
		t.Errorf("Registry.EventBuffer = %d, want default 1024", cfg.Registry.EventBuffer)
	}
	if len(cfg.Etcd.Endpoints) != 2 {
		t.Errorf("len(Etcd.Endpoints) = %d, want 2", len(cfg.Etcd.Endpoints))
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
registry:
  max_owned: 0
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for max_owned = 0, got nil")
	}
	if !strings.Contains(err.Error(), "max_owned") {
		t.Errorf("Load() error = %v, want mention of max_owned", err)
	}
}

func TestLoad_InvalidMaxOwnedEnv(t *testing.T) {
	configPath := writeConfig(t, `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)
	t.Setenv("REGISTRY_MAX_OWNED", "many")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for non-numeric REGISTRY_MAX_OWNED")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "zero max owned", mutate: func(c *Config) { c.Registry.MaxOwned = 0 }, wantErr: true},
		{name: "empty context tag", mutate: func(c *Config) { c.Registry.ContextTag = "" }, wantErr: true},
		{name: "zero round interval", mutate: func(c *Config) { c.Registry.RoundInterval = 0 }, wantErr: true},
		{name: "zero event buffer", mutate: func(c *Config) { c.Registry.EventBuffer = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Registry.EventRetryAttempts = -1 }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Registry.Store = "leveldb" }, wantErr: true},
		{name: "memory store", mutate: func(c *Config) { c.Registry.Store = StoreMemory }, wantErr: false},
		{name: "redis store without url", mutate: func(c *Config) {
			c.Registry.Store = StoreRedis
			c.Redis.URL = ""
		}, wantErr: true},
		{name: "etcd store without endpoints", mutate: func(c *Config) { c.Registry.Store = StoreEtcd }, wantErr: true},
		{name: "etcd store with endpoints", mutate: func(c *Config) {
			c.Registry.Store = StoreEtcd
			c.Etcd.Endpoints = []string{"localhost:2379"}
		}, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = validJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("REGISTRY_MAX_OWNED", "7")
	t.Setenv("REGISTRY_STORE", "redis")
	t.Setenv("REGISTRY_DATABASE_PATH", "/custom/path.db")
	t.Setenv("REGISTRY_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("REGISTRY_ETCD_ENDPOINTS", "etcd1:2379,etcd2:2379")
	t.Setenv("REGISTRY_MQTT_HOST", "mqtt.example.com")
	t.Setenv("REGISTRY_MQTT_USERNAME", "testuser")
	t.Setenv("REGISTRY_MQTT_PASSWORD", "testpass")
	t.Setenv("REGISTRY_API_HOST", "192.168.1.1")
	t.Setenv("REGISTRY_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("REGISTRY_JWT_SECRET", "jwt-secret")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Registry.MaxOwned != 7 {
		t.Errorf("Registry.MaxOwned = %d, want 7", cfg.Registry.MaxOwned)
	}
	if cfg.Registry.Store != StoreRedis {
		t.Errorf("Registry.Store = %q, want %q", cfg.Registry.Store, StoreRedis)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Redis.URL != "redis://cache:6379/2" {
		t.Errorf("Redis.URL = %q, want %q", cfg.Redis.URL, "redis://cache:6379/2")
	}
	if len(cfg.Etcd.Endpoints) != 2 || cfg.Etcd.Endpoints[1] != "etcd2:2379" {
		t.Errorf("Etcd.Endpoints = %v, want [etcd1:2379 etcd2:2379]", cfg.Etcd.Endpoints)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Registry.ContextTag != "unique_id" {
		t.Errorf("defaultConfig Registry.ContextTag = %q, want %q", cfg.Registry.ContextTag, "unique_id")
	}
	if cfg.Registry.Store != StoreSQLite {
		t.Errorf("defaultConfig Registry.Store = %q, want %q", cfg.Registry.Store, StoreSQLite)
	}
	if cfg.Registry.MaxOwned < 1 {
		t.Errorf("defaultConfig Registry.MaxOwned = %d, want >= 1", cfg.Registry.MaxOwned)
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
}
