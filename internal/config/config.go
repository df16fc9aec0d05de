package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Bot      BotConfig
	Database DatabaseConfig
	Cache    CacheConfig
}

// ServerConfig holds settings for the reporting HTTP server.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"kol-faxbot"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
}

// BotConfig holds the game account and protocol settings.
type BotConfig struct {
	Username string `envconfig:"FAXBOT_USERNAME" default:""`
	Password string `envconfig:"FAXBOT_PASSWORD" default:""`
	// Operator is the player to contact when the bot needs attention.
	Operator string `envconfig:"FAXBOT_OPERATOR" default:""`

	// DefaultClan is where the bot idles; FaxDumpClan is where unwanted
	// faxes are discarded. Both must be whitelisted.
	DefaultClan int64 `envconfig:"DEFAULT_CLAN" default:"0"`
	FaxDumpClan int64 `envconfig:"FAX_DUMP_CLAN" default:"0"`

	RunFaxRollover bool `envconfig:"RUN_FAX_ROLLOVER" default:"false"`
	// RunDangerousFaxRollover skips the rollover protection check.
	RunDangerousFaxRollover bool `envconfig:"RUN_DANGEROUS_FAX_ROLLOVER" default:"false"`

	// Controllers is a comma-separated list of player ids allowed to use
	// restricted commands.
	Controllers string `envconfig:"BOT_CONTROLLERS" default:""`

	// MaintainAccounts is a comma-separated list of user:password pairs that
	// are logged in once a day so they don't go inactive.
	MaintainAccounts string `envconfig:"MAINTAIN_ACCOUNTS" default:""`

	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"3s"`
	SpamWindow        time.Duration `envconfig:"SPAM_WINDOW" default:"3s"`
	WarnCooldown      time.Duration `envconfig:"WARN_COOLDOWN" default:"5s"`

	// SourcePickPolicy breaks ties between clans offering the same monster:
	// "oldest" trusts the fax that has been unchanged longest, "newest" the
	// most recently seen one.
	SourcePickPolicy string `envconfig:"SOURCE_PICK_POLICY" default:"oldest"`
}

// DatabaseConfig holds the SQLite path and the optional MySQL fax log.
type DatabaseConfig struct {
	Path string `envconfig:"FAXBOT_DB_PATH" default:"./data/faxbot.db"`

	// FaxLogType selects where completed faxes are recorded: sqlite or mysql.
	FaxLogType string `envconfig:"FAXLOG_DB_TYPE" default:"sqlite"`

	MySQLHost     string `envconfig:"FAXLOG_MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"FAXLOG_MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"FAXLOG_MYSQL_NAME" default:"faxbot"`
	MySQLUser     string `envconfig:"FAXLOG_MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"FAXLOG_MYSQL_PASS" default:""`
}

// CacheConfig holds report cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"`
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// MySQLDSN returns the MySQL data source name for the fax log.
func (d *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.MySQLUser, d.MySQLPassword, d.MySQLHost, d.MySQLPort, d.MySQLName)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// ControllerIDs parses the configured controller list.
func (b *BotConfig) ControllerIDs() []int64 {
	var ids []int64

	for _, part := range strings.Split(b.Controllers, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids
}

// Credentials is a login pair for a maintained side account.
type Credentials struct {
	Username string
	Password string
}

// MaintainAccountLogins parses the configured side account list. Malformed
// entries are dropped.
func (b *BotConfig) MaintainAccountLogins() []Credentials {
	var accounts []Credentials

	for _, part := range strings.Split(b.MaintainAccounts, ",") {
		user, pass, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || user == "" || pass == "" {
			continue
		}

		accounts = append(accounts, Credentials{Username: user, Password: pass})
	}

	return accounts
}

// Validate checks settings the bot cannot run without.
func (b *BotConfig) Validate() error {
	if len(b.Username) < 3 {
		return fmt.Errorf("FAXBOT_USERNAME hasn't been configured properly")
	}

	if len(b.Password) < 6 || b.Password == b.Username {
		return fmt.Errorf("FAXBOT_PASSWORD hasn't been configured properly or is incredibly insecure")
	}

	if len(b.Operator) < 3 {
		return fmt.Errorf("FAXBOT_OPERATOR hasn't been configured properly")
	}

	if b.DefaultClan <= 0 {
		return fmt.Errorf("DEFAULT_CLAN hasn't been configured properly")
	}

	if b.FaxDumpClan <= 0 {
		return fmt.Errorf("FAX_DUMP_CLAN hasn't been configured properly")
	}

	if b.SourcePickPolicy != "oldest" && b.SourcePickPolicy != "newest" {
		return fmt.Errorf("SOURCE_PICK_POLICY must be 'oldest' or 'newest'")
	}

	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}

	return cfg
}
