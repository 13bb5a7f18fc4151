package config

import (
	"testing"
	"time"

	"docgate/internal/models"
)

func validConfig() AppConfig {
	return AppConfig{
		Environment: "development",
		Security:    SecurityConfig{SessionLifetime: 24 * time.Hour},
		Packages: []models.PackageFeatures{
			{Code: "PROPOSAL"},
			{Code: "HASIL"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"valid", func(*AppConfig) {}, false},
		{"zero lifetime", func(c *AppConfig) { c.Security.SessionLifetime = 0 }, true},
		{"production without secret", func(c *AppConfig) { c.Environment = "production" }, true},
		{"production with secret", func(c *AppConfig) {
			c.Environment = "production"
			c.Security.JWTAccessSecret = "s"
		}, false},
		{"package without code", func(c *AppConfig) { c.Packages = append(c.Packages, models.PackageFeatures{}) }, true},
		{"duplicate package", func(c *AppConfig) { c.Packages = append(c.Packages, models.PackageFeatures{Code: "HASIL"}) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoad_DefaultsAndEnv verifies that defaults fill every section and that
// nested keys can be overridden from the environment.
func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DOCGATE_SECURITY_JWTACCESSSECRET", "from-env")
	t.Setenv("DOCGATE_HTTP_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Security.JWTAccessSecret != "from-env" {
		t.Fatalf("secret = %q, want from-env", cfg.Security.JWTAccessSecret)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Security.SessionLifetime != 24*time.Hour {
		t.Fatalf("session lifetime = %s, want 24h", cfg.Security.SessionLifetime)
	}

	catalog := cfg.PackageCatalog()
	for _, code := range []string{"PROPOSAL", "HASIL", "TUTUP"} {
		p, ok := catalog[code]
		if !ok {
			t.Fatalf("package %s missing", code)
		}
		if !p.RequiresApproval {
			t.Errorf("package %s should require approval", code)
		}
		if !p.AllowsType("application/pdf") {
			t.Errorf("package %s should allow pdf", code)
		}
	}
}
