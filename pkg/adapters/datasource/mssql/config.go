package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/exim-agent/pkg/config"
)

// DefaultPort is the SQL Server listener port.
const DefaultPort = 1433

// DefaultConnectionTimeout is the login timeout in seconds.
const DefaultConnectionTimeout = 30

// Validate checks the settings needed to build a DSN.
func Validate(cfg config.MSSQLConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database is required")
	}
	if cfg.User == "" {
		return fmt.Errorf("user is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port out of range: %d", cfg.Port)
	}
	return nil
}

// DSN builds a sqlserver:// connection string for SQL authentication.
// ApplicationIntent=ReadOnly routes the session to a readable secondary
// when one exists and marks the connection read-only otherwise.
func DSN(cfg config.MSSQLConfig) string {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("encrypt", strconv.FormatBool(cfg.Encrypt))

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	timeout := cfg.ConnectTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	query.Add("connection timeout", strconv.Itoa(timeout))

	if cfg.ReadOnlyIntent {
		query.Add("ApplicationIntent", "ReadOnly")
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
