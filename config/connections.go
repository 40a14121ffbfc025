package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

const connectionsFile = "connections.json"

// Connection is a named profile selectable with --connection or from the
// connect screen.
type Connection struct {
	Name     string   `json:"name"`
	Host     string   `json:"host"`
	Port     string   `json:"port"`
	User     string   `json:"user"`
	Password string   `json:"password"`
	Database string   `json:"database"`
	SSLMode  string   `json:"ssl_mode"`
	SSH      SSHEntry `json:"ssh,omitempty"`
}

// SSHEntry is the bastion part of a profile. Ports are kept as typed by the
// user; ToConfig parses them.
type SSHEntry struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Host          string `json:"host,omitempty"`
	Port          string `json:"port,omitempty"`
	User          string `json:"user,omitempty"`
	KeyPath       string `json:"key_path,omitempty"`
	KeyPassphrase string `json:"key_passphrase,omitempty"`
}

// ConnectionStore is the connections.json file. Names are unique.
type ConnectionStore struct {
	path        string
	Connections []Connection `json:"connections"`
}

// NewConnectionStore opens the store under ConfigDir.
func NewConnectionStore() (*ConnectionStore, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return OpenConnectionStore(dir)
}

// OpenConnectionStore reads dir/connections.json. A missing file is an
// empty store.
func OpenConnectionStore(dir string) (*ConnectionStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	s := &ConnectionStore{path: filepath.Join(dir, connectionsFile)}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse connections: %w", err)
	}
	return s, nil
}

// Save replaces the file atomically; it holds passwords, hence 0600.
func (s *ConnectionStore) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *ConnectionStore) index(name string) int {
	return slices.IndexFunc(s.Connections, func(c Connection) bool { return c.Name == name })
}

// Add inserts conn or replaces the profile with the same name.
func (s *ConnectionStore) Add(conn Connection) {
	if i := s.index(conn.Name); i >= 0 {
		s.Connections[i] = conn
		return
	}
	s.Connections = append(s.Connections, conn)
}

func (s *ConnectionStore) Delete(name string) {
	s.Connections = slices.DeleteFunc(s.Connections, func(c Connection) bool { return c.Name == name })
}

func (s *ConnectionStore) Get(name string) (Connection, bool) {
	if i := s.index(name); i >= 0 {
		return s.Connections[i], true
	}
	return Connection{}, false
}

// DefaultConnection is a local PostgreSQL on the standard ports.
func DefaultConnection() Connection {
	return Connection{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Database: "postgres",
		SSLMode:  "disable",
		SSH:      SSHEntry{Port: "22"},
	}
}

// ToConfig converts a saved profile into a connectable Config.
// Unparseable ports fall back to the protocol defaults.
func (c Connection) ToConfig() Config {
	return Config{
		Host:     c.Host,
		Port:     portOr(c.Port, 5432),
		User:     c.User,
		Password: c.Password,
		Database: c.Database,
		SSLMode:  c.SSLMode,
		SSH: SSHConfig{
			Enabled:       c.SSH.Enabled,
			Host:          c.SSH.Host,
			Port:          portOr(c.SSH.Port, 22),
			User:          c.SSH.User,
			KeyPath:       c.SSH.KeyPath,
			KeyPassphrase: c.SSH.KeyPassphrase,
		},
	}
}

func portOr(s string, def int) int {
	if p, err := strconv.Atoi(s); err == nil && p > 0 && p < 65536 {
		return p
	}
	return def
}
