package config

import (
	"fmt"
	"os"
)

// InitConfig writes a default configuration file to the default location.
//
// Returns the path the file was written to. Fails if a config file already
// exists unless force is set.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file to the given path.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists: %s\n\n"+
				"Use --force to overwrite it", path)
		}
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}

	return path, nil
}
