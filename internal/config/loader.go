package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "TAMSHAI_GATEWAY"
	configBaseName = "tamshai-gateway"
)

// InitViper wires viper to the config file and environment. cfgFile may be
// empty, in which case the standard locations are searched.
func InitViper(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	bindNestedEnvKeys()
}

// findConfigFile searches the working directory, the user's home, and /etc
// for a tamshai-gateway config file.
func findConfigFile() string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "."+configBaseName))
	}
	dirs = append(dirs, "/etc/"+configBaseName)

	for _, dir := range dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configBaseName+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the nested keys explicitly. AutomaticEnv only
// resolves keys viper already knows about, so without these bindings a key
// absent from the config file would ignore its environment override.
func bindNestedEnvKeys() {
	keys := []string{
		"server.addr",
		"server.shutdown_timeout",
		"server.log_level",
		"confirmation.timeout",
		"confirmation.store",
		"confirmation.sqlite_path",
		"confirmation.sweep_interval",
		"page.soft_cap",
		"audit.dir",
		"audit.retention_days",
		"dev_mode",
	}
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}
}

// ConfigFileUsed reports the config file viper loaded, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// LoadConfig reads, defaults, and validates the gateway configuration. A
// missing config file is not an error; the environment and defaults still
// apply.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
