package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables recognized by ApplyEnv. Credentials in particular are
// expected to arrive this way rather than inside job files.
const (
	EnvHost        = "CHFERRY_DB_HOST"
	EnvPort        = "CHFERRY_DB_PORT"
	EnvDatabase    = "CHFERRY_DB_DATABASE"
	EnvUsername    = "CHFERRY_DB_USERNAME"
	EnvPassword    = "CHFERRY_DB_PASSWORD"
	EnvAccessToken = "CHFERRY_DB_ACCESS_TOKEN"
	EnvSecure      = "CHFERRY_DB_SECURE"
)

// LoadDotenv loads the named .env files into the process environment. A
// missing file is not an error; an unreadable or malformed one is.
func LoadDotenv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays CHFERRY_DB_* environment variables onto the connection
// parameters. Set variables win over job-file values; unset ones leave the
// existing value alone.
func (c *ConnParams) ApplyEnv() {
	if v := os.Getenv(EnvHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Password = v
	}
	if v := os.Getenv(EnvAccessToken); v != "" {
		c.AccessToken = v
	}
	if v := os.Getenv(EnvSecure); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Secure = b
		}
	}
}
