package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"docgate/internal/models"
)

type HTTPConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
}

type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	BucketDocuments string
	UseSSL          bool
	Region          string
}

type SecurityConfig struct {
	JWTAccessSecret string
	JWTAccessTTL    time.Duration
	// SessionLifetime is the idle window after which a session is revoked.
	SessionLifetime    time.Duration
	LoginRatePerMinute int
	LoginBurst         int
	LoginMaxFailures   int64
	LoginLockWindow    time.Duration
}

type ProcessorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type JobsConfig struct {
	SessionSweep      string
	SubscriptionSweep string
	JobPoll           string
}

type WorkerConfig struct {
	Consumer      string
	ClaimInterval time.Duration
	// MaxDeliveries is how often a failing task is retried before its
	// document is marked failed.
	MaxDeliveries int64
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Processor        ProcessorConfig
	Packages         []models.PackageFeatures
	Jobs             JobsConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

// PackageCatalog indexes the configured packages by code.
func (c *AppConfig) PackageCatalog() map[string]models.PackageFeatures {
	catalog := make(map[string]models.PackageFeatures, len(c.Packages))
	for _, p := range c.Packages {
		catalog[p.Code] = p
	}
	return catalog
}

func Load() (*AppConfig, error) {
	// .env files are optional; real environment variables win.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("DOCGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Security.SessionLifetime <= 0 {
		return fmt.Errorf("security.sessionlifetime must be positive")
	}
	if c.Environment == "production" && c.Security.JWTAccessSecret == "" {
		return fmt.Errorf("security.jwtaccesssecret is required in production")
	}
	seen := make(map[string]struct{}, len(c.Packages))
	for _, p := range c.Packages {
		if p.Code == "" {
			return fmt.Errorf("package without code")
		}
		if _, dup := seen[p.Code]; dup {
			return fmt.Errorf("package %s defined twice", p.Code)
		}
		seen[p.Code] = struct{}{}
	}
	return nil
}

var documentTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.automigrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "documents:dispatch")
	v.SetDefault("redis.group", "document-workers")

	v.SetDefault("storage.bucketdocuments", "docgate-documents")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccessttl", "168h")
	v.SetDefault("security.sessionlifetime", "24h")
	v.SetDefault("security.loginrateperminute", 10)
	v.SetDefault("security.loginburst", 5)
	v.SetDefault("security.loginmaxfailures", 5)
	v.SetDefault("security.loginlockwindow", "15m")

	v.SetDefault("processor.baseurl", "http://localhost:8000")
	v.SetDefault("processor.timeout", "120s")

	v.SetDefault("packages", []map[string]any{
		{"code": "PROPOSAL", "name": "Paket Proposal", "maxdocuments": 10, "maxfilesizemb": 10, "maxpages": 50, "requiresapproval": true, "alloweddocumenttypes": documentTypes},
		{"code": "HASIL", "name": "Paket Hasil", "maxdocuments": 20, "maxfilesizemb": 15, "maxpages": 100, "requiresapproval": true, "alloweddocumenttypes": documentTypes},
		{"code": "TUTUP", "name": "Paket Tutup", "maxdocuments": 30, "maxfilesizemb": 20, "maxpages": 150, "requiresapproval": true, "alloweddocumenttypes": documentTypes},
	})

	v.SetDefault("jobs.sessionsweep", "0 */15 * * * *")
	v.SetDefault("jobs.subscriptionsweep", "0 5 0 * * *")
	v.SetDefault("jobs.jobpoll", "*/30 * * * * *")

	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")
	v.SetDefault("worker.maxdeliveries", 5)
}
