package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentic-research/crawl/internal/query"
)

// Environment variables read by ApplyEnv.
const (
	EnvDriver   = "CRAWL_DRIVER"
	EnvDSN      = "CRAWL_DSN"
	EnvDatabase = "CRAWL_DATABASE"
	EnvPassword = "CRAWL_PASSWORD"
	EnvLog      = "CRAWL_LOG"
)

// ErrNoDatabase is returned when neither a DSN nor a database URI is set.
var ErrNoDatabase = errors.New("no database configured: set --dsn or " + EnvDSN)

// Settings is the runtime configuration of a crawl process.
type Settings struct {
	Driver string
	// DSN is passed to the driver as is.
	DSN string
	// Database is the legacy host:port/database?user form, used when DSN is empty.
	Database string
	Password string
	// LogMode is development or production.
	LogMode string
}

// ApplyEnv fills every empty field from its environment variable.
func (s *Settings) ApplyEnv() {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	fill(&s.Driver, EnvDriver)
	fill(&s.DSN, EnvDSN)
	fill(&s.Database, EnvDatabase)
	fill(&s.Password, EnvPassword)
	fill(&s.LogMode, EnvLog)
}

// Connection returns the canonical driver name and the DSN to open.
func (s Settings) Connection() (driver, dsn string, err error) {
	driver, err = query.NormalizeDriver(s.Driver)
	if err != nil {
		return "", "", err
	}
	if s.DSN != "" {
		return driver, s.DSN, nil
	}
	if s.Database == "" {
		return "", "", ErrNoDatabase
	}
	t, err := query.ParseLegacyURI(s.Database)
	if err != nil {
		return "", "", fmt.Errorf("database: %w", err)
	}
	t.Password = s.Password
	dsn, err = t.DSN(driver)
	if err != nil {
		return "", "", err
	}
	return driver, dsn, nil
}
