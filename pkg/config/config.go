// Package config loads the deployment configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/policy"
)

// Defaults.
const (
	DefaultApp         = "acorn-pups"
	DefaultEnvironment = policy.EnvDev
	DefaultRegion      = "us-east-1"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// Environment variables.
const (
	EnvConfigFile      = "ACORN_PUPS_CONFIG"
	EnvEnvironment     = "ACORN_PUPS_ENVIRONMENT"
	EnvAccount         = "CDK_DEFAULT_ACCOUNT"
	EnvRegion          = "CDK_DEFAULT_REGION"
	EnvAWSRegion       = "AWS_REGION"
	EnvAWSProfile      = "AWS_PROFILE"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvEndpoint        = "ACORN_PUPS_AWS_ENDPOINT"
	EnvOutputsFile     = "ACORN_PUPS_OUTPUTS_FILE"
	ContextEnvironment = "environment"
)

var appPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

// Config is the deployment configuration.
type Config struct {
	App          string                    `yaml:"app"`
	Environment  string                    `yaml:"environment"`
	Account      string                    `yaml:"account,omitempty"`
	Region       string                    `yaml:"region"`
	Log          LogConfig                 `yaml:"log"`
	AWS          AWSConfig                 `yaml:"aws"`
	OutputsFile  string                    `yaml:"outputsFile,omitempty"`
	Environments map[string]PolicyOverride `yaml:"environments,omitempty"`

	// LoadedFrom lists the sources applied, lowest precedence first.
	LoadedFrom []string `yaml:"-"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AWSConfig holds optional client overrides. Empty fields fall back to the SDK default chain.
type AWSConfig struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"accessKeyId,omitempty"`
	SecretAccessKey string `yaml:"secretAccessKey,omitempty"`
	SessionToken    string `yaml:"sessionToken,omitempty"`
	Profile         string `yaml:"profile,omitempty"`
}

// HasStaticCredentials reports whether an access key pair is configured.
func (a AWSConfig) HasStaticCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// PolicyOverride adjusts or adds an environment policy. Base names the built-in bundle it starts
// from (dev when empty); unset fields keep the base value.
type PolicyOverride struct {
	Base                   string               `yaml:"base,omitempty"`
	DurableRecoveryEnabled *bool                `yaml:"durableRecoveryEnabled,omitempty"`
	DeletionProtected      *bool                `yaml:"deletionProtected,omitempty"`
	RetentionDays          *int                 `yaml:"retentionDays,omitempty"`
	AlarmsEnabled          *bool                `yaml:"alarmsEnabled,omitempty"`
	DetailedMonitoring     *bool                `yaml:"detailedMonitoring,omitempty"`
	CapacityMode           *policy.CapacityMode `yaml:"capacityMode,omitempty"`
	Teardown               *policy.Teardown     `yaml:"teardown,omitempty"`
}

func (o PolicyOverride) apply(p policy.Policy) policy.Policy {
	if o.DurableRecoveryEnabled != nil {
		p.DurableRecoveryEnabled = *o.DurableRecoveryEnabled
	}
	if o.DeletionProtected != nil {
		p.DeletionProtected = *o.DeletionProtected
	}
	if o.RetentionDays != nil {
		p.RetentionDays = *o.RetentionDays
	}
	if o.AlarmsEnabled != nil {
		p.AlarmsEnabled = *o.AlarmsEnabled
	}
	if o.DetailedMonitoring != nil {
		p.DetailedMonitoring = *o.DetailedMonitoring
	}
	if o.CapacityMode != nil {
		p.CapacityMode = *o.CapacityMode
	}
	if o.Teardown != nil {
		p.Teardown = *o.Teardown
	}
	return p
}

// Default returns the configuration before any file or environment is applied.
func Default() *Config {
	return &Config{
		App:         DefaultApp,
		Environment: DefaultEnvironment,
		Region:      DefaultRegion,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		LoadedFrom: []string{"defaults"},
	}
}

// Load applies defaults, the YAML file at path (skipped when path is empty) and the process
// environment, then validates the result.
func Load(path string) (*Config, error) {
	return NewLoader(path, os.Getenv).Load()
}

// LoadDefault is Load with the file named by ACORN_PUPS_CONFIG.
func LoadDefault() (*Config, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// ReadDefault is LoadDefault without validation, for callers that layer their own overrides
// before calling Validate.
func ReadDefault() (*Config, error) {
	return NewLoader(os.Getenv(EnvConfigFile), os.Getenv).Read()
}

// Loader loads configuration from a file and an environment lookup.
type Loader struct {
	path   string
	getenv func(string) string
}

func NewLoader(path string, getenv func(string) string) *Loader {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	return &Loader{path: path, getenv: getenv}
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read applies defaults, the file and the environment without validating the result.
func (l *Loader) Read() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := cfg.loadFile(l.path); err != nil {
			return nil, err
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, l.path)
	}

	cfg.applyEnv(l.getenv)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return dbinfra.WrapError(dbinfra.ErrorCodeInvalidConfig, path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return dbinfra.WrapError(dbinfra.ErrorCodeInvalidConfig, path, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Environment, EnvEnvironment)
	set(&c.Account, EnvAccount)
	set(&c.Region, EnvRegion, EnvAWSRegion)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.Log.Format, EnvLogFormat)
	set(&c.AWS.Endpoint, EnvEndpoint)
	set(&c.AWS.Profile, EnvAWSProfile)
	set(&c.OutputsFile, EnvOutputsFile)
}

// ApplyContext applies deploy-tool context values; a non-empty "environment" replaces the
// configured environment.
func (c *Config) ApplyContext(values map[string]string) {
	if v := strings.TrimSpace(values[ContextEnvironment]); v != "" {
		c.Environment = v
		c.LoadedFrom = append(c.LoadedFrom, "context")
	}
}

// Validate reports every configuration problem. An environment without a policy is reported
// with the invalid environment code.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(subject, msg string) {
		errs = append(errs, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, subject, msg))
	}

	if !appPattern.MatchString(c.App) {
		invalid(c.App, "app must be lowercase letters, digits and hyphens")
	}
	if strings.TrimSpace(c.Region) == "" {
		invalid("region", "region is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		invalid(c.Log.Level, "log level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		invalid(c.Log.Format, "log format must be json or console")
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		invalid("aws", "accessKeyId and secretAccessKey must be set together")
	}

	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Resolver returns the policy resolver for the built-in bundles with the configured overrides.
func (c *Config) Resolver() (*policy.Resolver, error) {
	bundles := policy.Defaults()
	for _, tag := range sortedTags(c.Environments) {
		o := c.Environments[tag]
		base := o.Base
		if base == "" {
			base = tag
			if _, ok := bundles[tag]; !ok {
				base = policy.EnvDev
			}
		}
		p, ok := policy.Defaults()[base]
		if !ok {
			return nil, dbinfra.NewError(dbinfra.ErrorCodeInvalidConfig, tag, fmt.Sprintf("unknown base environment %q", base))
		}
		p.Environment = tag
		bundles[tag] = o.apply(p)
	}
	return policy.NewResolver(bundles)
}

// Policy resolves the configured environment.
func (c *Config) Policy() (policy.Policy, error) {
	r, err := c.Resolver()
	if err != nil {
		return policy.Policy{}, err
	}
	return r.Resolve(c.Environment)
}

// LogFields returns the configuration as log fields. Credentials are left to the logger's
// sanitizer.
func (c *Config) LogFields() map[string]any {
	return map[string]any{
		"app":               c.App,
		"environment":       c.Environment,
		"account":           c.Account,
		"region":            c.Region,
		"endpoint":          c.AWS.Endpoint,
		"profile":           c.AWS.Profile,
		"access_key_id":     c.AWS.AccessKeyID,
		"secret_access_key": c.AWS.SecretAccessKey,
		"outputs_file":      c.OutputsFile,
		"loaded_from":       strings.Join(c.LoadedFrom, ","),
	}
}

func sortedTags(m map[string]PolicyOverride) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
