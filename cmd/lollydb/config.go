package main

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// envKeyReplacer maps data-dir to LOLLYDB_DATA_DIR
var envKeyReplacer = strings.NewReplacer("-", "_")

func configDir() string {
	return filepath.Join(xdg.ConfigHome, "lollydb")
}

// GetConfigInt retrieves an int config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (LOLLYDB_*)
// 3. Config file
// 4. Default value
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}
