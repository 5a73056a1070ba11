package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr     string `mapstructure:"addr"`
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	Tracker Tracker `mapstructure:"tracker"`
	Relay   Relay   `mapstructure:"relay"`
}

// Severity decides what happens to validation errors raised while tracking.
type Severity string

const (
	SeverityExceptions Severity = "exceptions"
	SeverityWarnings   Severity = "warnings"
	SeveritySilence    Severity = "silence"
)

// Tracker configures a tracker and its transport.
type Tracker struct {
	ErrorSeverity  Severity      `mapstructure:"error_severity"`
	SendOnShutdown bool          `mapstructure:"send_on_shutdown"`
	FireAndForget  bool          `mapstructure:"fire_and_forget"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	EndpointScheme string        `mapstructure:"endpoint_scheme"`
	// EndpointHost left empty disables sending altogether.
	EndpointHost         string `mapstructure:"endpoint_host"`
	EndpointPath         string `mapstructure:"endpoint_path"`
	AnonymizeIPAddresses bool   `mapstructure:"anonymize_ip_addresses"`
	SitespeedSampleRate  int    `mapstructure:"sitespeed_sample_rate"`
}

// Relay configures the tracking identity and visitor bookkeeping of the
// relay service.
type Relay struct {
	AccountID  string        `mapstructure:"account_id"`
	DomainName string        `mapstructure:"domain_name"`
	AllowHash  bool          `mapstructure:"allow_hash"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

var ErrConfiguration = errors.New("invalid configuration")

// AccountIDPattern matches web property ids like "UA-1234-1".
var AccountIDPattern = regexp.MustCompile(`^UA-[0-9]*-[0-9]*$`)

// ConfigurationError reports an unknown or invalid option. It is raised
// while configuring, never while tracking.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func setTrackerDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+"error_severity", string(SeverityExceptions))
	v.SetDefault(prefix+"send_on_shutdown", false)
	v.SetDefault(prefix+"fire_and_forget", false)
	v.SetDefault(prefix+"request_timeout", time.Second)
	v.SetDefault(prefix+"endpoint_scheme", "http")
	v.SetDefault(prefix+"endpoint_host", "www.google-analytics.com")
	v.SetDefault(prefix+"endpoint_path", "/__utm.gif")
	v.SetDefault(prefix+"anonymize_ip_addresses", false)
	v.SetDefault(prefix+"sitespeed_sample_rate", 1)
}

// New returns a viper instance with defaults, the optional
// configs/application.yaml and APP_* environment overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	setTrackerDefaults(v, "tracker.")
	v.SetDefault("relay.account_id", "")
	v.SetDefault("relay.domain_name", "")
	v.SetDefault("relay.allow_hash", true)
	v.SetDefault("relay.session_ttl", 30*time.Minute)
	return v
}

func Load() (Config, error) {
	return Decode(New())
}

// Decode unmarshals v strictly; unknown keys are configuration errors.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, &ConfigurationError{Err: err}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Watch re-decodes the config file on every change and hands valid results
// to onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Decode(v)
		if err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("config reload rejected")
			return
		}
		log.Info().Str("file", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}

// TrackerFromMap builds a tracker configuration from loose properties, on
// top of the defaults.
func TrackerFromMap(props map[string]any) (Tracker, error) {
	v := viper.New()
	setTrackerDefaults(v, "")
	if err := v.MergeConfigMap(props); err != nil {
		return Tracker{}, &ConfigurationError{Err: err}
	}

	var t Tracker
	if err := v.UnmarshalExact(&t); err != nil {
		return Tracker{}, &ConfigurationError{Err: err}
	}
	if err := t.Validate(); err != nil {
		return Tracker{}, err
	}
	return t, nil
}

// DefaultTracker is the tracker configuration without any overrides.
func DefaultTracker() Tracker {
	t, err := TrackerFromMap(nil)
	if err != nil {
		panic(fmt.Errorf("default tracker config: %w", err))
	}
	return t
}

func (t Tracker) Validate() error {
	switch t.ErrorSeverity {
	case SeverityExceptions, SeverityWarnings, SeveritySilence:
	default:
		return &ConfigurationError{Key: "error_severity", Err: fmt.Errorf("unknown severity %q", t.ErrorSeverity)}
	}
	if t.SitespeedSampleRate < 0 || t.SitespeedSampleRate > 100 {
		return &ConfigurationError{Key: "sitespeed_sample_rate", Err: fmt.Errorf("%d is not within 0-100", t.SitespeedSampleRate)}
	}
	if t.RequestTimeout <= 0 {
		return &ConfigurationError{Key: "request_timeout", Err: fmt.Errorf("must be positive, got %s", t.RequestTimeout)}
	}
	if t.EndpointScheme != "http" && t.EndpointScheme != "https" {
		return &ConfigurationError{Key: "endpoint_scheme", Err: fmt.Errorf("unsupported scheme %q", t.EndpointScheme)}
	}
	if !strings.HasPrefix(t.EndpointPath, "/") {
		return &ConfigurationError{Key: "endpoint_path", Err: fmt.Errorf("%q must start with a slash", t.EndpointPath)}
	}
	return nil
}

func (c *Config) validate() error {
	if err := c.Tracker.Validate(); err != nil {
		return err
	}
	if !AccountIDPattern.MatchString(c.Relay.AccountID) {
		return &ConfigurationError{Key: "relay.account_id", Err: fmt.Errorf("%q is not a valid account id", c.Relay.AccountID)}
	}
	if c.Relay.SessionTTL <= 0 {
		return &ConfigurationError{Key: "relay.session_ttl", Err: fmt.Errorf("must be positive, got %s", c.Relay.SessionTTL)}
	}
	return nil
}
