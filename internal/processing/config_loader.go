package processing

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed mappings/*.yaml
var builtinMappings embed.FS

// ConfigLoader holds the loaded mapping configurations, keyed by exact
// service name.
type ConfigLoader struct {
	configs map[string]MappingConfig
}

// NewConfigLoader loads the built-in mappings and, when configPath is not
// empty, every YAML file below it. A service name defined twice is an error.
func NewConfigLoader(configPath string) (*ConfigLoader, error) {
	loader := &ConfigLoader{configs: make(map[string]MappingConfig)}

	if err := loader.loadFS(builtinMappings, "mappings"); err != nil {
		return nil, fmt.Errorf("failed to load built-in mappings: %w", err)
	}

	if configPath != "" {
		if err := loader.loadFS(os.DirFS(configPath), "."); err != nil {
			return nil, fmt.Errorf("error walking config directory %s: %w", configPath, err)
		}
	}

	if len(loader.configs) == 0 {
		slog.Warn("No mapping configs were loaded.", "path", configPath)
	}
	return loader, nil
}

// NewConfigLoaderFromConfigs builds a loader from already-constructed
// configs, validating each one.
func NewConfigLoaderFromConfigs(configs ...MappingConfig) (*ConfigLoader, error) {
	loader := &ConfigLoader{configs: make(map[string]MappingConfig)}
	for _, c := range configs {
		if err := loader.add(c, "<inline>"); err != nil {
			return nil, err
		}
	}
	return loader, nil
}

// loadFS recursively scans fsys from root for YAML files, loads them and
// validates them.
func (l *ConfigLoader) loadFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || (filepath.Ext(d.Name()) != ".yaml" && filepath.Ext(d.Name()) != ".yml") {
			return nil
		}

		slog.Info("Loading mapping config", "file", path)

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		var config MappingConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse YAML for %s: %w", path, err)
		}

		return l.add(config, path)
	})
}

func (l *ConfigLoader) add(config MappingConfig, source string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("validation failed for %s: %w", source, err)
	}
	if config.Category == "" {
		config.Category = config.ServiceName
	}
	if _, exists := l.configs[config.ServiceName]; exists {
		return fmt.Errorf("duplicate service_name '%s' found in %s", config.ServiceName, source)
	}
	l.configs[config.ServiceName] = config
	return nil
}

// GetConfig retrieves a validated configuration by its exact service name.
func (l *ConfigLoader) GetConfig(serviceName string) (MappingConfig, bool) {
	config, ok := l.configs[serviceName]
	return config, ok
}

// ServiceNames lists the registered service names in sorted order.
func (l *ConfigLoader) ServiceNames() []string {
	names := make([]string, 0, len(l.configs))
	for name := range l.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configs returns every registered mapping sorted by service name.
func (l *ConfigLoader) Configs() []MappingConfig {
	out := make([]MappingConfig, 0, len(l.configs))
	for _, name := range l.ServiceNames() {
		out = append(out, l.configs[name])
	}
	return out
}
