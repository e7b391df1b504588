package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env from the working directory and the project root.
// Variables already set are not overridden; missing files are ignored.
func LoadEnv(root string) {
	_ = godotenv.Load()
	if root != "" {
		_ = godotenv.Load(filepath.Join(root, ".env"))
	}
}

// ProxyCredential resolves the configured proxy key. A key naming a set
// environment variable yields that variable's value.
func (c *Config) ProxyCredential() string {
	key := c.Search.ProxyKey
	if key == "" {
		return ""
	}
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return key
}
