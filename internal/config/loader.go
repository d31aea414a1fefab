package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"switchyard/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/switchyard"
	configFileName = "config.yaml"
	// ServersDirName is the directory holding one ServerDefinition per YAML file.
	ServersDirName = "servers"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from a single directory: defaults first, then
// config.yaml, then every servers/*.yaml file. Unreadable or malformed server files
// are reported together as a *ConfigurationErrorCollection alongside the servers
// that did load.
func LoadConfig(configPath string) (SwitchyardConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return SwitchyardConfig{}, err
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return SwitchyardConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		for i := range config.Servers {
			config.Servers[i].SourceFile = configFilePath
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	defs, collection := LoadServerDefinitions(filepath.Join(configPath, ServersDirName))
	config.Servers = append(config.Servers, defs...)
	if collection.HasErrors() {
		return config, collection
	}
	return config, nil
}

// LoadServerDefinitions reads every YAML file in dir. A missing directory yields no
// definitions and no errors.
func LoadServerDefinitions(dir string) ([]ServerDefinition, *ConfigurationErrorCollection) {
	collection := NewConfigurationErrorCollection()

	files, err := listYAMLFiles(dir)
	if err != nil {
		collection.AddError(dir, filepath.Base(dir), SourceServers, CategoryServers, ErrorTypeIO, err.Error())
		return nil, collection
	}

	var defs []ServerDefinition
	for _, path := range files {
		def, err := LoadServerDefinition(path)
		if err != nil {
			collection.Add(NewConfigurationErrorWithDetails(path, filepath.Base(path), SourceServers, CategoryServers, ErrorTypeParse,
				"failed to parse server definition", err.Error(),
				[]string{"Check the YAML syntax", "Each file must contain exactly one server definition"}))
			continue
		}
		defs = append(defs, def)
	}
	if len(defs) > 0 {
		logging.Info("ConfigLoader", "Loaded %d server definitions from %s", len(defs), dir)
	}
	return defs, collection
}

// LoadServerDefinition reads a single server definition file. The server name
// defaults to the file name without extension.
func LoadServerDefinition(path string) (ServerDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServerDefinition{}, err
	}
	var def ServerDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ServerDefinition{}, err
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	def.SourceFile = path
	return def, nil
}

// listYAMLFiles lists .yaml and .yml files in dirPath in name order.
func listYAMLFiles(dirPath string) ([]string, error) {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return nil, nil
	}

	yamlFiles, err := filepath.Glob(filepath.Join(dirPath, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob yaml files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(dirPath, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob yml files: %w", err)
	}

	all := append(yamlFiles, ymlFiles...)
	sort.Strings(all)
	return all, nil
}

// isYAMLFile checks if a file path is a YAML file.
func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
