package db

import (
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Backend names a recognized relational engine.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendSQLite   Backend = "sqlite"
)

const sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"

// ResolveBackend maps the scheme of a connection string to a Backend.
func ResolveBackend(connURL string) (Backend, error) {
	u, err := url.Parse(strings.TrimSpace(connURL))
	if err != nil {
		return "", fmt.Errorf("parse connection url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if i := strings.IndexByte(scheme, '+'); i >= 0 {
		scheme = scheme[:i]
	}
	switch scheme {
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "mysql":
		return BackendMySQL, nil
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unsupported %q backend", u.Scheme)
	}
}

// Dialect builds the gorm dialector for a connection string.
func Dialect(connURL string) (gorm.Dialector, Backend, error) {
	backend, err := ResolveBackend(connURL)
	if err != nil {
		return nil, "", err
	}
	u, err := url.Parse(strings.TrimSpace(connURL))
	if err != nil {
		return nil, "", fmt.Errorf("parse connection url: %w", err)
	}

	switch backend {
	case BackendMySQL:
		return mysql.Open(mysqlDSN(u)), backend, nil
	case BackendPostgres:
		u.Scheme = "postgres"
		return postgres.Open(u.String()), backend, nil
	default:
		return sqlite.Open(sqliteDSN(u)), backend, nil
	}
}

func mysqlDSN(u *url.URL) string {
	password, _ := u.User.Password()
	host := u.Host
	if u.Port() == "" {
		host += ":3306"
	}
	query := u.Query()
	if query.Get("charset") == "" {
		query.Set("charset", "utf8mb4")
	}
	query.Set("parseTime", "True")
	query.Set("loc", "UTC")
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?%s",
		u.User.Username(),
		password,
		host,
		strings.TrimPrefix(u.Path, "/"),
		query.Encode(),
	)
}

// sqliteDSN follows the sqlite:// convention: no path means an in-memory
// database, sqlite:///var/lib/x.db is an absolute path.
func sqliteDSN(u *url.URL) string {
	path := u.Host + u.Path
	if path == "" || path == "/" {
		return sqliteMemoryDSN
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}
