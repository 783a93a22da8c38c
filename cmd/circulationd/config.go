package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/distributorauth"
	"github.com/jonathangreen/circulation/service/shared/shell/config"
)

const (
	envPrefix = "CIRCULATION"

	driverPGX  = "pgx"
	driverSQL  = "sql"
	driverSQLX = "sqlx"

	unlimited = -1
)

// ErrInvalidConfig is returned when flags and environment do not make a usable configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// DatabaseConfig is what both serve and migrate need to reach the ledger.
type DatabaseConfig struct {
	URL             string `validate:"required"`
	ReplicaURL      string
	Driver          string `validate:"oneof=pgx sql sqlx"`
	TablePrefix     string `validate:"required"`
	StartupAttempts int    `validate:"gte=1"`
	Pool            config.PoolSettings
}

// DistributorConfig describes how to reach and authenticate with the distributor.
type DistributorConfig struct {
	Auth     string        `validate:"oneof=none basic oauth"`
	Username string        `validate:"required_unless=Auth none"`
	Password string        `validate:"required_unless=Auth none"`
	FeedURL  string        `validate:"omitempty,url"`
	Timeout  time.Duration `validate:"gt=0"`
}

// Config is the full daemon configuration.
type Config struct {
	Listen      string `validate:"required"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	Tracing     bool
	Migrate     bool
	Database    DatabaseConfig
	Distributor DistributorConfig

	LibraryShortName  string        `validate:"required"`
	LoanLimit         int           `validate:"gte=-1"`
	HoldLimit         int           `validate:"gte=-1"`
	LoanDuration      time.Duration `validate:"gt=0"`
	ReservationPeriod time.Duration `validate:"gt=0"`
	PassphraseHint    string
	PassphraseHintURL string `validate:"omitempty,url"`
	NotificationURL   string `validate:"omitempty,url"`
}

func registerFlags(flags *pflag.FlagSet) {
	pool := config.DefaultPoolSettings()

	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("tracing", false, "report spans to the global OpenTelemetry tracer provider")

	flags.String("database-url", "", "PostgreSQL connection string of the ledger")
	flags.String("database-replica-url", "", "optional read replica for patron activity listings")
	flags.String("database-driver", driverPGX, "database driver: pgx, sql or sqlx")
	flags.String("table-prefix", "circulation_", "prefix of the ledger tables")
	flags.Int("startup-attempts", 6, "attempts to reach the database on startup")
	flags.Int("db-max-conns", pool.MaxConns, "maximum open database connections")
	flags.Int("db-min-conns", pool.MinConns, "minimum idle database connections")
	flags.Duration("db-max-conn-lifetime", pool.MaxConnLifetime, "maximum lifetime of a database connection")
	flags.Duration("db-max-conn-idle-time", pool.MaxConnIdleTime, "maximum idle time of a database connection")
	flags.Duration("db-connect-timeout", pool.ConnectTimeout, "timeout for opening a database connection")

	flags.String("listen", ":8080", "address of the notification and metrics endpoints")
	flags.Bool("migrate", false, "apply ledger migrations before serving")

	flags.String("distributor-auth", string(distributorauth.AuthNone), "distributor authentication: none, basic or oauth")
	flags.String("distributor-username", "", "distributor username")
	flags.String("distributor-password", "", "distributor password")
	flags.String("distributor-feed-url", "", "feed used to discover the OAuth token endpoint")
	flags.Duration("distributor-timeout", 20*time.Second, "timeout of one distributor request")

	flags.String("library-short-name", "", "short name of the library the collection belongs to")
	flags.Int("loan-limit", unlimited, "active loans per patron in the collection, -1 or 0 for unlimited")
	flags.Int("hold-limit", unlimited, "holds per patron in the collection, -1 for unlimited, 0 disables holds")
	flags.Duration("loan-duration", circulation.DefaultLoanDuration, "default loan period")
	flags.Duration("reservation-period", circulation.DefaultReservationPeriod, "time a patron has to claim a reserved copy")
	flags.String("passphrase-hint", "", "LCP passphrase hint sent on checkout")
	flags.String("passphrase-hint-url", "", "LCP passphrase hint URL sent on checkout")
	flags.String("notification-url", "", "base URL of the notification callback given to the distributor")
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	return v, nil
}

func loadDatabaseConfig(v *viper.Viper) (DatabaseConfig, error) {
	cfg := DatabaseConfig{
		URL:             v.GetString("database-url"),
		ReplicaURL:      v.GetString("database-replica-url"),
		Driver:          strings.ToLower(strings.TrimSpace(v.GetString("database-driver"))),
		TablePrefix:     v.GetString("table-prefix"),
		StartupAttempts: v.GetInt("startup-attempts"),
		Pool: config.PoolSettings{
			MaxConns:        v.GetInt("db-max-conns"),
			MinConns:        v.GetInt("db-min-conns"),
			MaxConnLifetime: v.GetDuration("db-max-conn-lifetime"),
			MaxConnIdleTime: v.GetDuration("db-max-conn-idle-time"),
			ConnectTimeout:  v.GetDuration("db-connect-timeout"),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return DatabaseConfig{}, errors.Join(ErrInvalidConfig, err)
	}

	if cfg.ReplicaURL != "" && cfg.Driver != driverPGX {
		return DatabaseConfig{}, errors.Join(ErrInvalidConfig, fmt.Errorf("a read replica needs the %s driver", driverPGX))
	}

	return cfg, nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	database, err := loadDatabaseConfig(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen:   v.GetString("listen"),
		LogLevel: strings.ToLower(strings.TrimSpace(v.GetString("log-level"))),
		Tracing:  v.GetBool("tracing"),
		Migrate:  v.GetBool("migrate"),
		Database: database,
		Distributor: DistributorConfig{
			Auth:     strings.ToLower(strings.TrimSpace(v.GetString("distributor-auth"))),
			Username: v.GetString("distributor-username"),
			Password: v.GetString("distributor-password"),
			FeedURL:  v.GetString("distributor-feed-url"),
			Timeout:  v.GetDuration("distributor-timeout"),
		},
		LibraryShortName:  v.GetString("library-short-name"),
		LoanLimit:         v.GetInt("loan-limit"),
		HoldLimit:         v.GetInt("hold-limit"),
		LoanDuration:      v.GetDuration("loan-duration"),
		ReservationPeriod: v.GetDuration("reservation-period"),
		PassphraseHint:    v.GetString("passphrase-hint"),
		PassphraseHintURL: v.GetString("passphrase-hint-url"),
		NotificationURL:   v.GetString("notification-url"),
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}

	return cfg, nil
}

// CollectionSettings maps the limits to the collection settings, -1 meaning unlimited.
func (c Config) CollectionSettings() circulation.CollectionSettings {
	settings := circulation.DefaultCollectionSettings(c.LibraryShortName)
	settings.LoanDuration = c.LoanDuration
	settings.ReservationPeriod = c.ReservationPeriod
	settings.PassphraseHint = c.PassphraseHint
	settings.PassphraseHintURL = c.PassphraseHintURL
	settings.NotificationURL = c.NotificationURL

	if c.LoanLimit != unlimited {
		limit := c.LoanLimit
		settings.LoanLimit = &limit
	}

	if c.HoldLimit != unlimited {
		limit := c.HoldLimit
		settings.HoldLimit = &limit
	}

	return settings
}
