// Package config loads the inputs of one send from an optional config file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-githubactions"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the loaded configuration is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Provider names.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderStdout = "stdout"
)

// Config holds the complete configuration of one invocation.
type Config struct {
	Provider string        `yaml:"provider" toml:"provider"`
	Inputs   Inputs        `yaml:"inputs" toml:"inputs"`
	SES      SESConfig     `yaml:"ses" toml:"ses"`
	Graph    GraphConfig   `yaml:"graph" toml:"graph"`
	DKIM     DKIMConfig    `yaml:"dkim" toml:"dkim"`
	Logging  LoggingConfig `yaml:"logging" toml:"logging"`
}

// Inputs are the raw, string-typed message and connection inputs. An empty
// string means the input was not supplied.
type Inputs struct {
	ServerAddress string `yaml:"server_address" toml:"server_address"`
	ServerPort    string `yaml:"server_port" toml:"server_port"`
	Secure        string `yaml:"secure" toml:"secure"`
	Username      string `yaml:"username" toml:"username"`
	Password      string `yaml:"password" toml:"password"`
	ConnectionURL string `yaml:"connection_url" toml:"connection_url"`
	Subject       string `yaml:"subject" toml:"subject"`
	From          string `yaml:"from" toml:"from"`
	To            string `yaml:"to" toml:"to"`
	Body          string `yaml:"body" toml:"body"`
	HTMLBody      string `yaml:"html_body" toml:"html_body"`
	Cc            string `yaml:"cc" toml:"cc"`
	Bcc           string `yaml:"bcc" toml:"bcc"`
	ReplyTo       string `yaml:"reply_to" toml:"reply_to"`
	InReplyTo     string `yaml:"in_reply_to" toml:"in_reply_to"`
	Attachments   string `yaml:"attachments" toml:"attachments"`
	IgnoreCert    string `yaml:"ignore_cert" toml:"ignore_cert"`
	Priority      string `yaml:"priority" toml:"priority"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region" toml:"region"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id" toml:"tenant_id"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	Sender       string `yaml:"sender" toml:"sender"`
}

// DKIMConfig holds DKIM signing configuration.
type DKIMConfig struct {
	KeyFile  string `yaml:"key_file" toml:"key_file"`
	Domain   string `yaml:"domain" toml:"domain"`
	Selector string `yaml:"selector" toml:"selector"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Options control where Load looks for configuration.
type Options struct {
	// File is an optional YAML (.yaml, .yml) or TOML (.toml) config file.
	File string

	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// Flags holds values set on the command line. Non-empty fields win
	// over every other layer.
	Flags *Config
}

// inputNames maps each action input name to its field in Inputs.
var inputNames = []struct {
	name  string
	field func(*Inputs) *string
}{
	{"server_address", func(i *Inputs) *string { return &i.ServerAddress }},
	{"server_port", func(i *Inputs) *string { return &i.ServerPort }},
	{"secure", func(i *Inputs) *string { return &i.Secure }},
	{"username", func(i *Inputs) *string { return &i.Username }},
	{"password", func(i *Inputs) *string { return &i.Password }},
	{"connection_url", func(i *Inputs) *string { return &i.ConnectionURL }},
	{"subject", func(i *Inputs) *string { return &i.Subject }},
	{"from", func(i *Inputs) *string { return &i.From }},
	{"to", func(i *Inputs) *string { return &i.To }},
	{"body", func(i *Inputs) *string { return &i.Body }},
	{"html_body", func(i *Inputs) *string { return &i.HTMLBody }},
	{"cc", func(i *Inputs) *string { return &i.Cc }},
	{"bcc", func(i *Inputs) *string { return &i.Bcc }},
	{"reply_to", func(i *Inputs) *string { return &i.ReplyTo }},
	{"in_reply_to", func(i *Inputs) *string { return &i.InReplyTo }},
	{"attachments", func(i *Inputs) *string { return &i.Attachments }},
	{"ignore_cert", func(i *Inputs) *string { return &i.IgnoreCert }},
	{"priority", func(i *Inputs) *string { return &i.Priority }},
}

// InputNames returns the action input names in declaration order.
func InputNames() []string {
	names := make([]string, 0, len(inputNames))
	for _, in := range inputNames {
		names = append(names, in.name)
	}
	return names
}

// Input returns a pointer to the field backing the named input, or nil if
// the name is unknown.
func (i *Inputs) Input(name string) *string {
	for _, in := range inputNames {
		if in.name == name {
			return in.field(i)
		}
	}
	return nil
}

// Load layers defaults, the optional config file, the environment and the
// flags, then validates the result.
func Load(opts Options) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{}
	cfg.applyDefaults()

	if opts.File != "" {
		fileCfg, err := loadFile(opts.File)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	if err := mergo.Merge(cfg, fromEnv(getenv), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge environment: %w", err)
	}

	if opts.Flags != nil {
		if err := mergo.Merge(cfg, opts.Flags, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge flags: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the provider, provider credentials, DKIM and logging settings.
// Message inputs are checked later, when the request is assembled.
func (c *Config) Validate() error {
	var problems []string

	switch c.Provider {
	case ProviderSMTP, ProviderStdout:
	case ProviderSES:
		if c.SES.Region == "" {
			problems = append(problems, "ses region is required")
		}
	case ProviderGraph:
		if !c.GraphConfigured() {
			problems = append(problems, "graph tenant_id, client_id and client_secret are required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q", c.Provider))
	}

	if (c.DKIM.KeyFile == "") != (c.DKIM.Domain == "") {
		problems = append(problems, "dkim key_file and domain must be set together")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// GraphConfigured returns true if the Graph API client credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

// DKIMEnabled returns true if a DKIM key and domain are configured.
func (c *Config) DKIMEnabled() bool {
	return c.DKIM.KeyFile != "" && c.DKIM.Domain != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Provider = ProviderSMTP
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(c.Provider)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// loadFile parses a YAML or TOML config file, chosen by extension.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config file extension %q", ErrInvalidConfig, ext)
	}
	return cfg, nil
}

// fromEnv reads action inputs from INPUT_<NAME> variables and the ambient
// settings from their own variables. Unset variables leave fields empty.
func fromEnv(getenv func(string) string) *Config {
	action := githubactions.New(githubactions.WithGetenv(getenv))

	cfg := &Config{}
	for _, in := range inputNames {
		*in.field(&cfg.Inputs) = action.GetInput(in.name)
	}

	cfg.Provider = getenv("PROVIDER")

	cfg.SES.Region = getenv("SES_REGION")
	cfg.SES.AccessKeyID = getenv("SES_ACCESS_KEY_ID")
	cfg.SES.SecretAccessKey = getenv("SES_SECRET_ACCESS_KEY")

	cfg.Graph.TenantID = getenv("GRAPH_TENANT_ID")
	cfg.Graph.ClientID = getenv("GRAPH_CLIENT_ID")
	cfg.Graph.ClientSecret = getenv("GRAPH_CLIENT_SECRET")
	cfg.Graph.Sender = getenv("GRAPH_SENDER")

	cfg.DKIM.KeyFile = getenv("DKIM_KEY_FILE")
	cfg.DKIM.Domain = getenv("DKIM_DOMAIN")
	cfg.DKIM.Selector = getenv("DKIM_SELECTOR")

	cfg.Logging.Level = getenv("LOG_LEVEL")
	cfg.Logging.Format = getenv("LOG_FORMAT")

	return cfg
}
