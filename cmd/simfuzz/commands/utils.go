/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the simfuzz commands. Provides configuration loading,
logging setup and flag value parsing used across the command implementations.
*/

package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kleascm/simfuzz/pkg/logging"
	"github.com/kleascm/simfuzz/pkg/provision"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable simfuzz reads
const EnvPrefix = "SIMFUZZ"

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// SetupLogging builds the logger from the log_* settings
func SetupLogging() (*logging.Logger, error) {
	config := &logging.LoggerConfig{
		Level:     logging.LogLevel(viper.GetString("log_level")),
		Format:    logging.LogFormat(viper.GetString("log_format")),
		OutputDir: viper.GetString("log_dir"),
		MaxFiles:  viper.GetInt("log_max_files"),
		Timestamp: true,
		Colors:    viper.GetString("log_format") == string(logging.LogFormatCustom),
		Compress:  viper.GetBool("log_compress"),
	}
	if viper.GetBool("json_logs") {
		config.Format = logging.LogFormatJSON
		config.Colors = false
	}
	return logging.NewLogger(config, nil)
}

// parsePackages parses every --package value
func parsePackages(values []string) ([]provision.PackageSelection, error) {
	out := make([]provision.PackageSelection, 0, len(values))
	for _, v := range values {
		sel, err := provision.ParsePackageSelection(v)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

// parseFiles parses every --file value
func parseFiles(values []string) ([]provision.FileMapping, error) {
	out := make([]provision.FileMapping, 0, len(values))
	for _, v := range values {
		m, err := provision.ParseFileMapping(v)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// parseArtifact turns "component.so" or "component.a" into an artifact request.
// An empty value means no instrumentation module is injected.
func parseArtifact(value string) (*provision.LibraryArtifact, error) {
	if value == "" {
		return nil, nil
	}
	kind, err := provision.ParseLibraryKind(value)
	if err != nil {
		return nil, err
	}
	component := strings.TrimSuffix(value, filepath.Ext(value))
	if component == "" {
		return nil, fmt.Errorf("artifact %q has no component name", value)
	}
	return &provision.LibraryArtifact{Component: component, Kind: kind}, nil
}
