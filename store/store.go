// Package store seeds the control panel's client credentials from a
// local credential file, falling back to environment defaults, and
// saves them back on request.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rorycl/ShaamInvoicePanel/flow"
	"gopkg.in/yaml.v3"
)

// Environment variables holding the default credentials
const (
	EnvClientID     = "SHAAM_CLIENT_ID"
	EnvClientSecret = "SHAAM_CLIENT_SECRET"
)

// LoadEnv loads environment files with godotenv. A leading "~" is
// expanded to the home directory and missing files are skipped.
// Variables already set in the environment are not overridden.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if strings.HasPrefix(file, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			file = strings.Replace(file, "~", home, 1)
		}
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("env file %s: %w", file, err)
		}
	}
	return nil
}

// fileCredentials is the layout of the credential file
type fileCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// File is a yaml credential file
type File struct {
	Path string
}

// Load reads the credential file. A missing file yields empty
// credentials.
func (s File) Load() (flow.Credentials, error) {
	var c flow.Credentials
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read credential file: %w", err)
	}
	var fc fileCredentials
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return c, fmt.Errorf("failed to parse credential file: %w", err)
	}
	c.ClientID, c.ClientSecret = fc.ClientID, fc.ClientSecret
	return c, nil
}

// Seed returns the initial credentials: each value comes from the
// credential file when set there, else from the environment
func (s File) Seed() (flow.Credentials, error) {
	c, err := s.Load()
	if err != nil {
		return c, err
	}
	if c.ClientID == "" {
		c.ClientID = os.Getenv(EnvClientID)
	}
	if c.ClientSecret == "" {
		c.ClientSecret = os.Getenv(EnvClientSecret)
	}
	return c, nil
}

// Save writes the credentials to the credential file, readable only by
// the user
func (s File) Save(c flow.Credentials) error {
	data, err := yaml.Marshal(fileCredentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create credential directory: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}
