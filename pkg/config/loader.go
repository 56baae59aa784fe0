package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "POCKETMOCK"

// DefaultConfigName is the config file base name searched for when no path is given.
const DefaultConfigName = "pocketmock"

// FlagKeys maps command-line flag names to configuration keys. Load binds
// every flag in this map that the given flag set defines.
var FlagKeys = map[string]string{
	"listen":          "listen",
	"proxy-listen":    "proxyListen",
	"proxy-mode":      "proxyMode",
	"rules":           "rulesFile",
	"prefix":          "bootstrapPrefix",
	"watch":           "watch",
	"read-only":       "readOnly",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"max-log-entries": "requestLog.maxEntries",
	"log-db":          "requestLog.database",
	"log-passthrough": "requestLog.passthrough",
	"max-depth":       "template.maxDepth",
	"max-repeat":      "template.maxRepeat",
	"bypass":          "bypass",
	"aliases":         "aliasesFile",
}

// Load builds the configuration. path names the config file; when empty,
// pocketmock.{yaml,yml,json} is looked up in the working directory and a
// missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// Viper lowercases every key, which would corrupt alias names and the
	// field names inside alias templates, so aliases are decoded separately.
	if used := v.ConfigFileUsed(); used != "" {
		aliases, err := readAliasSection(used)
		if err != nil {
			return nil, err
		}
		cfg.Aliases = aliases
	}
	if cfg.AliasesFile != "" {
		extra, err := LoadAliasesFile(resolvePath(v.ConfigFileUsed(), cfg.AliasesFile))
		if err != nil {
			return nil, err
		}
		if cfg.Aliases == nil {
			cfg.Aliases = make(map[string]any, len(extra))
		}
		for name, tmpl := range extra {
			if _, ok := cfg.Aliases[name]; !ok {
				cfg.Aliases[name] = tmpl
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("proxyListen", d.ProxyListen)
	v.SetDefault("proxyMode", d.ProxyMode)
	v.SetDefault("rulesFile", d.RulesFile)
	v.SetDefault("bootstrapPrefix", d.BootstrapPrefix)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("readOnly", d.ReadOnly)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.maxSizeMB", d.Log.MaxSizeMB)
	v.SetDefault("log.maxBackups", d.Log.MaxBackups)
	v.SetDefault("requestLog.maxEntries", d.RequestLog.MaxEntries)
	v.SetDefault("requestLog.database", d.RequestLog.Database)
	v.SetDefault("requestLog.passthrough", d.RequestLog.Passthrough)
	v.SetDefault("template.maxDepth", d.Template.MaxDepth)
	v.SetDefault("template.maxRepeat", d.Template.MaxRepeat)
	v.SetDefault("bypass", []string{})
	v.SetDefault("aliasesFile", d.AliasesFile)
}

// readAliasSection decodes only the aliases mapping of a config file,
// preserving key case. JSON files parse as YAML.
func readAliasSection(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var doc struct {
		Aliases map[string]any `yaml:"aliases"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding aliases in %s: %w", path, err)
	}
	return doc.Aliases, nil
}

// LoadAliasesFile reads a JSON or YAML mapping of alias name to template.
func LoadAliasesFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading aliases file: %w", err)
	}
	var aliases map[string]any
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("%w: aliases file %s: %v", ErrInvalidConfig, path, err)
	}
	return aliases, nil
}

// resolvePath interprets rel relative to the directory of the config file.
func resolvePath(configFile, rel string) string {
	if configFile == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(configFile), rel)
}
