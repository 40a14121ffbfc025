// Package config defines the application configuration structures.
//
// Separated from cmd to allow other packages (db, ssh, ai, agent) to
// depend on config without importing Cobra.
package config

import (
	"net/url"
	"strconv"
)

// Config holds the database connection settings.
type Config struct {
	// URI, when set, is a full postgres:// connection string (PG_URI)
	// and takes precedence over the discrete fields below.
	URI string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	SSH SSHConfig
}

// SSHConfig holds SSH tunnel settings.
type SSHConfig struct {
	Enabled       bool
	Host          string
	Port          int
	User          string
	KeyPath       string
	KeyPassphrase string
}

// DSN builds a pgx-compatible connection string.
// When SSH tunnel is active, the caller should override Host/Port
// with the local tunnel endpoint.
func (c Config) DSN() string {
	if c.URI != "" {
		return c.URI
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + sslMode
}

// Redacted returns a display form of the target without credentials.
func (c Config) Redacted() string {
	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return "(unparseable uri)"
		}
		return u.Redacted()
	}
	return c.User + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.Database
}
