package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Keycloak      KeycloakConfig
	Mimir         MimirConfig
	GoogleAds     GoogleAdsConfig
	Monitor       MonitorConfig
	Notifications NotificationsConfig
	Probe         ProbeConfig
	Log           LogConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type MimirConfig struct {
	URL          string
	TenantHeader string
	BatchSize    int
	AuthToken    string
	Timeout      time.Duration
}

type GoogleAdsConfig struct {
	DeveloperToken    string
	ClientID          string
	ClientSecret      string
	LoginCustomerID   string
	BaseURL           string
	TokenURL          string
	APIVersion        string
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	Timeout           time.Duration
}

type MonitorConfig struct {
	Platform    string
	Interval    time.Duration
	Concurrency int
	RunTimeout  time.Duration
}

type NotificationsConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// ProbeConfig tunes the landing page inspector.
type ProbeConfig struct {
	Enabled     bool
	DNSServer   string
	UserAgent   string
	HTTPTimeout time.Duration
	SkipWhois   bool
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("ADSGUARD")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.maxidleconns", 2)
	viper.SetDefault("redis.lockttl", "45m")
	viper.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("mimir.batchsize", 1000)
	viper.SetDefault("mimir.timeout", "30s")
	viper.SetDefault("googleads.baseurl", "https://googleads.googleapis.com")
	viper.SetDefault("googleads.tokenurl", "https://oauth2.googleapis.com/token")
	viper.SetDefault("googleads.apiversion", "v18")
	viper.SetDefault("googleads.retryattempts", 2)
	viper.SetDefault("googleads.retrybasedelay", "1s")
	viper.SetDefault("googleads.requestspersecond", 5)
	viper.SetDefault("googleads.timeout", "60s")
	viper.SetDefault("monitor.platform", "google_ads")
	viper.SetDefault("monitor.interval", "30m")
	viper.SetDefault("monitor.concurrency", 1)
	viper.SetDefault("monitor.runtimeout", "25m")
	viper.SetDefault("notifications.timeout", "10s")
	viper.SetDefault("probe.enabled", true)
	viper.SetDefault("probe.dnsserver", "8.8.8.8:53")
	viper.SetDefault("probe.useragent", "AdsGuardian/1.0")
	viper.SetDefault("probe.httptimeout", "15s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("KEYCLOAK_URL"); url != "" {
		cfg.Keycloak.URL = url
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}
	if v := os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN"); v != "" {
		cfg.GoogleAds.DeveloperToken = v
	}
	if v := os.Getenv("GOOGLE_ADS_CLIENT_ID"); v != "" {
		cfg.GoogleAds.ClientID = v
	}
	if v := os.Getenv("GOOGLE_ADS_CLIENT_SECRET"); v != "" {
		cfg.GoogleAds.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_ADS_LOGIN_CUSTOMER_ID"); v != "" {
		cfg.GoogleAds.LoginCustomerID = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Notifications.WebhookURL = v
	}

	return &cfg, nil
}

// ValidateMonitor checks the settings a monitoring run cannot work without.
func (c *Config) ValidateMonitor() error {
	var errs []error
	if c.GoogleAds.DeveloperToken == "" {
		errs = append(errs, errors.New("googleads developer token is required"))
	}
	if c.GoogleAds.ClientID == "" || c.GoogleAds.ClientSecret == "" {
		errs = append(errs, errors.New("googleads oauth client id and secret are required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.Monitor.Concurrency < 1 {
		errs = append(errs, errors.New("monitor concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}
