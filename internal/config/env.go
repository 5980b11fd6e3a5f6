package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files from the working directory and the user's
// config directories. Variables already set in the environment win.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".vetscan", ".env"),
			filepath.Join(home, ".config", "vetscan", ".env"),
		)
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	return godotenv.Load(path)
}

// envAliases maps canonical keys to conventional names used by hosting
// platforms and the tesseract tooling.
var envAliases = map[string][]string{
	"VETSCAN_SERVER_PORT":               {"PORT"},
	"VETSCAN_EXTRACTION_TESSERACT_PATH": {"TESSERACT_PATH", "TESSERACT_CMD"},
	"VETSCAN_LOG_LEVEL":                 {"LOG_LEVEL"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}

// applyEnvAliases copies alias values onto unset canonical keys so viper's
// AutomaticEnv picks them up.
func applyEnvAliases() {
	for key := range envAliases {
		if os.Getenv(key) != "" {
			continue
		}
		if val := ResolveEnvWithAliases(key); val != "" {
			os.Setenv(key, val)
		}
	}
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
