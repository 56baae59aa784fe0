package config

import (
	"github.com/getmockd/pocketmock/pkg/interceptor"
	"github.com/getmockd/pocketmock/pkg/logging"
	"github.com/getmockd/pocketmock/pkg/proxy"
	"github.com/getmockd/pocketmock/pkg/requestlog"
	"github.com/getmockd/pocketmock/pkg/store"
	"github.com/getmockd/pocketmock/pkg/template"
)

// Default addresses.
const (
	DefaultListen = "127.0.0.1:4300"
)

// Config is the complete pocketmock configuration.
type Config struct {
	// Listen is the address of the dev server side-channel.
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen"`

	// ProxyListen, when set, also serves the forward proxy on this address.
	ProxyListen string `mapstructure:"proxyListen" json:"proxyListen,omitempty" yaml:"proxyListen,omitempty"`

	// ProxyMode is "intercept" or "passthrough". Passthrough forwards every
	// proxied call untouched.
	ProxyMode string `mapstructure:"proxyMode" json:"proxyMode,omitempty" yaml:"proxyMode,omitempty"`

	// ProxyFilter selects which proxied traffic is intercepted.
	ProxyFilter ProxyFilterConfig `mapstructure:"proxyFilter" json:"proxyFilter,omitzero" yaml:"proxyFilter,omitempty"`

	// RulesFile is the JSON or YAML rule file.
	RulesFile string `mapstructure:"rulesFile" json:"rulesFile" yaml:"rulesFile"`

	// BootstrapPrefix is the reserved path prefix of the side-channel.
	BootstrapPrefix string `mapstructure:"bootstrapPrefix" json:"bootstrapPrefix" yaml:"bootstrapPrefix"`

	// Watch reloads the rule file when it changes on disk.
	Watch bool `mapstructure:"watch" json:"watch" yaml:"watch"`

	// ReadOnly rejects rule saves.
	ReadOnly bool `mapstructure:"readOnly" json:"readOnly,omitempty" yaml:"readOnly,omitempty"`

	Log        LogConfig        `mapstructure:"log" json:"log" yaml:"log"`
	RequestLog RequestLogConfig `mapstructure:"requestLog" json:"requestLog" yaml:"requestLog"`
	Template   TemplateConfig   `mapstructure:"template" json:"template" yaml:"template"`

	// Bypass lists doublestar globs for calls that are never intercepted.
	Bypass []string `mapstructure:"bypass" json:"bypass,omitempty" yaml:"bypass,omitempty"`

	// Aliases are custom template rules registered at startup. Keys keep
	// their case as written in the config file.
	Aliases map[string]any `mapstructure:"-" json:"aliases,omitempty" yaml:"aliases,omitempty"`

	// AliasesFile is a JSON or YAML file of additional aliases.
	AliasesFile string `mapstructure:"aliasesFile" json:"aliasesFile,omitempty" yaml:"aliasesFile,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
	// File, when set, also writes JSON logs to this size-rotated file.
	File       string `mapstructure:"file" json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB" json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty"`
	MaxBackups int    `mapstructure:"maxBackups" json:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
}

// RequestLogConfig configures the request log.
type RequestLogConfig struct {
	// MaxEntries bounds the in-memory log.
	MaxEntries int `mapstructure:"maxEntries" json:"maxEntries" yaml:"maxEntries"`
	// Database, when set, also archives records to this SQLite file.
	Database string `mapstructure:"database" json:"database,omitempty" yaml:"database,omitempty"`
	// Passthrough also logs calls that were not mocked.
	Passthrough bool `mapstructure:"passthrough" json:"passthrough,omitempty" yaml:"passthrough,omitempty"`
}

// ProxyFilterConfig holds doublestar globs routing proxied traffic.
// Excludes win; empty includes intercept everything.
type ProxyFilterConfig struct {
	IncludeHosts []string `mapstructure:"includeHosts" json:"includeHosts,omitempty" yaml:"includeHosts,omitempty"`
	ExcludeHosts []string `mapstructure:"excludeHosts" json:"excludeHosts,omitempty" yaml:"excludeHosts,omitempty"`
	IncludePaths []string `mapstructure:"includePaths" json:"includePaths,omitempty" yaml:"includePaths,omitempty"`
	ExcludePaths []string `mapstructure:"excludePaths" json:"excludePaths,omitempty" yaml:"excludePaths,omitempty"`
}

// TemplateConfig configures template expansion.
type TemplateConfig struct {
	// MaxDepth limits nested alias resolution.
	MaxDepth int `mapstructure:"maxDepth" json:"maxDepth" yaml:"maxDepth"`
	// MaxRepeat limits the items one name|count key may produce.
	MaxRepeat int `mapstructure:"maxRepeat" json:"maxRepeat" yaml:"maxRepeat"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Listen:          DefaultListen,
		ProxyMode:       string(proxy.ModeIntercept),
		RulesFile:       store.DefaultRulesFile,
		BootstrapPrefix: interceptor.DefaultBootstrapPrefix,
		Watch:           true,
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		RequestLog: RequestLogConfig{
			MaxEntries: requestlog.DefaultMaxEntries,
		},
		Template: TemplateConfig{
			MaxDepth:  template.DefaultMaxDepth,
			MaxRepeat: template.DefaultMaxRepeat,
		},
	}
}

// LoggingConfig converts the log settings for logging.NewWithCloser.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Format = logging.ParseFormat(c.Log.Format)
	if c.Log.File != "" {
		cfg.File = &logging.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
		}
	}
	return cfg
}
