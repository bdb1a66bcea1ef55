package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/keelwatch/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Log deletion failures (but don't fail config save)
		fmt.Printf("⚠️  Failed to delete old backup %s: %v\n", back3, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetCLIConfigPath returns the path to the CLI-managed config file in ~/.keelwatch/config_cli.toml
func GetCLIConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".keelwatch", "config_cli.toml")
}

// loadOrInitializeCLIConfig loads the CLI config file, or creates an empty one if it doesn't exist
func loadOrInitializeCLIConfig() (map[string]interface{}, string, error) {
	configPath := GetCLIConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	// Ensure ~/.keelwatch directory exists
	kwDir := filepath.Dir(configPath)
	if err := os.MkdirAll(kwDir, DefaultDirPermissions); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .keelwatch directory")
	}

	var config map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse CLI config")
		}
	} else {
		config = make(map[string]interface{})
	}

	return config, configPath, nil
}

// saveCLIConfig writes the config to the CLI config file with backup
func saveCLIConfig(config map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write CLI config")
	}

	return nil
}

// section returns the named sub-table of config, creating it if absent
func section(config map[string]interface{}, name string) map[string]interface{} {
	if s, ok := config[name].(map[string]interface{}); ok {
		return s
	}
	s := make(map[string]interface{})
	config[name] = s
	return s
}

// UpdateShadowMode persists the shadow-mode flag in CLI config
func UpdateShadowMode(shadow bool) error {
	config, configPath, err := loadOrInitializeCLIConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load CLI config")
	}

	config["shadow"] = shadow

	return saveCLIConfig(config, configPath)
}

// UpdateRemovalThreshold persists health.removal_threshold in CLI config
func UpdateRemovalThreshold(threshold int) error {
	if threshold < 1 {
		return errors.Newf("removal threshold must be >= 1, got %d", threshold)
	}

	config, configPath, err := loadOrInitializeCLIConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load CLI config")
	}

	health := section(config, "health")
	health["removal_threshold"] = threshold

	return saveCLIConfig(config, configPath)
}

// UpdateSourceEnabled persists sources.<name>.enabled in CLI config
func UpdateSourceEnabled(name string, enabled bool) error {
	config, configPath, err := loadOrInitializeCLIConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load CLI config")
	}

	sources := section(config, "sources")
	src := make(map[string]interface{})
	if existing, ok := sources[name].(map[string]interface{}); ok {
		src = existing
	}
	src["enabled"] = enabled
	sources[name] = src

	return saveCLIConfig(config, configPath)
}
