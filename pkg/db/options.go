package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const tableOptionsKey = "gorm:table_options"

// BackendOptions is the option set applied to tables created on one engine.
type BackendOptions struct {
	Engine  string `mapstructure:"engine"`
	Charset string `mapstructure:"charset"`
}

// DefaultBackends returns the recognized engines and their default option
// sets. Only MySQL carries table options.
func DefaultBackends(mysqlEngine string) map[Backend]BackendOptions {
	if strings.TrimSpace(mysqlEngine) == "" {
		mysqlEngine = "InnoDB"
	}
	return map[Backend]BackendOptions{
		BackendMySQL:    {Engine: mysqlEngine, Charset: "utf8"},
		BackendPostgres: {},
		BackendSQLite:   {},
	}
}

// TableOptions renders the CREATE TABLE suffix for backend, or "" when the
// backend has none.
func TableOptions(backend Backend, backends map[Backend]BackendOptions) string {
	opts, ok := backends[backend]
	if !ok || backend != BackendMySQL {
		return ""
	}
	parts := make([]string, 0, 2)
	if engine := strings.TrimSpace(opts.Engine); engine != "" {
		parts = append(parts, fmt.Sprintf("ENGINE=%s", engine))
	}
	if charset := strings.TrimSpace(opts.Charset); charset != "" {
		parts = append(parts, fmt.Sprintf("DEFAULT CHARSET=%s", charset))
	}
	return strings.Join(parts, " ")
}

// WithTableOptions returns a session that appends the backend's table
// options to every table it creates.
func WithTableOptions(conn *gorm.DB, backend Backend, backends map[Backend]BackendOptions) *gorm.DB {
	options := TableOptions(backend, backends)
	if options == "" {
		return conn
	}
	return conn.Set(tableOptionsKey, options)
}
