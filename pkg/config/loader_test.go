package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type testConfig struct {
	Server ServerConfig `yaml:"server"`
	JWT    JWTConfig    `yaml:"jwt"`
	Redis  RedisConfig  `yaml:"redis"`
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadConfigMergesEnvironmentFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":5000"
redis:
  addr: "localhost:6379"
  db: 0
`)
	writeFile(t, dir, "production.yaml", `
redis:
  addr: "redis:6379"
`)

	got, err := LoadConfig("production", dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := map[string]interface{}{
		"server": map[string]interface{}{"port": ":5000"},
		"redis":  map[string]interface{}{"addr": "redis:6379", "db": 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigSubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: "${JWT_SECRET}"
redis:
  password: "${REDIS_PASSWORD}"
`)
	writeFile(t, dir, "secrets.env", "JWT_SECRET=s3cret\n")

	got, err := LoadConfig("local", dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := map[string]interface{}{
		"jwt":   map[string]interface{}{"secret": "s3cret"},
		"redis": map[string]interface{}{"password": ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAppliesDefaultsAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":6000"
jwt:
  secret: "from-yaml"
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")

	var cfg testConfig
	if err := Decode("local", dir, &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Server.Port != ":6000" {
		t.Errorf("port = %q, want yaml value", cfg.Server.Port)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("secret = %q, want env override", cfg.JWT.Secret)
	}
	if cfg.JWT.TTL != 168*time.Hour {
		t.Errorf("ttl = %v, want default", cfg.JWT.TTL)
	}
	if diff := cmp.Diff([]string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("cors origins (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRequiresBase(t *testing.T) {
	if _, err := LoadConfig("local", t.TempDir()); err == nil {
		t.Error("expected error without base.yaml")
	}
}
