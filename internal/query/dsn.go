package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Target describes a database server by parts, for drivers whose DSN has to
// be assembled.
type Target struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// ParseLegacyURI parses the short "host:port/database?user" form accepted by
// older deployments. Port and user are optional.
func ParseLegacyURI(uri string) (Target, error) {
	var t Target
	rest := strings.TrimSpace(uri)
	if rest == "" {
		return t, fmt.Errorf("empty database uri")
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		t.User = rest[i+1:]
		rest = rest[:i]
	}
	hostPort, db, ok := strings.Cut(rest, "/")
	if !ok || db == "" {
		return t, fmt.Errorf("database uri %q: want host:port/database?user", uri)
	}
	t.Database = db
	t.Host = hostPort
	if h, p, found := strings.Cut(hostPort, ":"); found {
		port, err := strconv.Atoi(p)
		if err != nil {
			return t, fmt.Errorf("database uri %q: bad port %q", uri, p)
		}
		t.Host, t.Port = h, port
	}
	if t.Host == "" {
		t.Host = "localhost"
	}
	return t, nil
}

// DSN renders the target in the connection-string syntax of driver.
func (t Target) DSN(driver string) (string, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return "", err
	}
	switch driver {
	case "mysql":
		port := t.Port
		if port == 0 {
			port = 3306
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			t.User, t.Password, t.Host, port, t.Database)
		if t.SSLMode == "require" {
			dsn += "&tls=true"
		}
		return dsn, nil
	case "sqlite":
		return t.Database, nil
	default:
		port := t.Port
		if port == 0 {
			port = 5432
		}
		ssl := t.SSLMode
		if ssl == "" {
			ssl = "disable"
		}
		parts := []string{
			"host=" + quoteValue(t.Host),
			"port=" + strconv.Itoa(port),
			"dbname=" + quoteValue(t.Database),
		}
		if t.User != "" {
			parts = append(parts, "user="+quoteValue(t.User))
		}
		if t.Password != "" {
			parts = append(parts, "password="+quoteValue(t.Password))
		}
		parts = append(parts, "sslmode="+ssl)
		return strings.Join(parts, " "), nil
	}
}

// quoteValue quotes a libpq keyword/value when it contains spaces or quotes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Redact hides the password of a DSN for logging.
func Redact(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=xxxxx"
		}
	}
	if len(fields) > 1 {
		return strings.Join(fields, " ")
	}
	if at := strings.LastIndexByte(dsn, '@'); at > 0 {
		if colon := strings.IndexByte(dsn[:at], ':'); colon >= 0 {
			return dsn[:colon+1] + "xxxxx" + dsn[at:]
		}
	}
	return dsn
}
