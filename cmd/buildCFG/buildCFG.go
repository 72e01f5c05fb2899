package buildCFG

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type ServerConfig struct {
	Port string
	Mode string
}

type DBConfig struct {
	Driver     string
	MasterDSN  string
	SlaveDSNs  []string
	Pool       *dbpg.Options
	SQLitePath string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type MailConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

type AuthConfig struct {
	Issuer string
	Secret string
}

type ExploreConfig struct {
	DefaultCity  string
	DefaultState string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// Secrets never live in config.yaml.
type Secrets struct {
	JWTSecret    string `env:"JWT_SECRET,required,notEmpty"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	DBPassword   string `env:"DB_PASSWORD"`
}

func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, using 8080")
	}
	mode := cfg.GetString("server.mode")
	if mode == "" {
		mode = "release"
	}
	return ServerConfig{Port: port, Mode: mode}
}

func BuildDBConfig(cfg *config.Config, secrets Secrets, log *zerolog.Logger) (DBConfig, error) {
	driver := strings.ToLower(cfg.GetString("db.driver"))
	if driver == "" {
		driver = DriverPostgres
	}

	switch driver {
	case DriverSQLite:
		path := cfg.GetString("db.sqlite_path")
		if path == "" {
			return DBConfig{}, fmt.Errorf("db.sqlite_path is required for the sqlite driver")
		}
		log.Info().Str("path", path).Msg("using sqlite database")
		return DBConfig{Driver: driver, SQLitePath: path}, nil
	case DriverPostgres:
	default:
		return DBConfig{}, fmt.Errorf("unknown db.driver %q", driver)
	}

	master := cfg.GetString("db.master_dsn")
	if master == "" {
		return DBConfig{}, fmt.Errorf("db.master_dsn is required")
	}
	master, err := withPassword(master, secrets.DBPassword)
	if err != nil {
		return DBConfig{}, fmt.Errorf("db.master_dsn: %w", err)
	}
	var slaves []string
	for _, dsn := range cfg.GetStringSlice("db.slave_dsns") {
		dsn, err := withPassword(dsn, secrets.DBPassword)
		if err != nil {
			return DBConfig{}, fmt.Errorf("db.slave_dsns: %w", err)
		}
		slaves = append(slaves, dsn)
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("db.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("db.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("db.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	log.Info().Int("replicas", len(slaves)).Int("max_open_conns", opts.MaxOpenConns).Msg("using postgres database")
	return DBConfig{Driver: driver, MasterDSN: master, SlaveDSNs: slaves, Pool: opts}, nil
}

// withPassword sets the password of a URL-form DSN. Key/value DSNs are
// returned unchanged.
func withPassword(dsn, password string) (string, error) {
	if password == "" || !strings.Contains(dsn, "://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.User == nil {
		return "", fmt.Errorf("dsn has no user to attach the password to")
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}

// BuildRabbitConfig returns an empty Url when rabbit.url is not set, which
// disables notifications.
func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		log.Warn().Msg("rabbit.url not set, notifications disabled")
		return rc, nil
	}
	if rc.Exchange == "" || rc.Queue == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit.exchange and rabbit.queue are required when rabbit.url is set")
	}
	return rc, nil
}

func BuildMailConfig(cfg *config.Config, secrets Secrets) (MailConfig, error) {
	mc := MailConfig{
		Host:     cfg.GetString("mail.host"),
		Port:     cfg.GetInt("mail.port"),
		From:     cfg.GetString("mail.from"),
		Password: secrets.SMTPPassword,
	}
	if mc.Host == "" {
		return mc, nil
	}
	if mc.Port == 0 {
		mc.Port = 587
	}
	if mc.From == "" {
		return MailConfig{}, fmt.Errorf("mail.from is required when mail.host is set")
	}
	return mc, nil
}

func BuildAuthConfig(cfg *config.Config, secrets Secrets) AuthConfig {
	return AuthConfig{Issuer: cfg.GetString("auth.issuer"), Secret: secrets.JWTSecret}
}

func BuildExploreConfig(cfg *config.Config) ExploreConfig {
	return ExploreConfig{
		DefaultCity:  cfg.GetString("explore.default_city"),
		DefaultState: cfg.GetString("explore.default_state"),
	}
}

func BuildTelemetryConfig(cfg *config.Config) TelemetryConfig {
	tc := TelemetryConfig{
		OTLPEndpoint: cfg.GetString("telemetry.otlp_endpoint"),
		ServiceName:  cfg.GetString("telemetry.service_name"),
	}
	if tc.ServiceName == "" {
		tc.ServiceName = "eventhive"
	}
	return tc
}
