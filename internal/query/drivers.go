package query

import (
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// DefaultDriver is used when no driver is configured.
const DefaultDriver = "pgx"

// ErrUnknownDriver is returned for driver names no registered database/sql
// driver answers to.
var ErrUnknownDriver = errors.New("unknown driver")

// Drivers lists the canonical driver names, in preference order.
var Drivers = []string{"pgx", "postgres", "mysql", "sqlite"}

// NormalizeDriver maps common aliases to a registered driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pgx", "pgsql":
		return DefaultDriver, nil
	case "postgres", "postgresql", "pq":
		return "postgres", nil
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownDriver, name, strings.Join(Drivers, ", "))
}

// StyleFor returns the placeholder style of a canonical driver name.
func StyleFor(driver string) Style {
	switch driver {
	case "mysql", "sqlite":
		return Question
	default:
		return Dollar
	}
}
