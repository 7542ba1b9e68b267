// Package config loads and validates the usermgrd configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (USERMGRD_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The loaded Config is immutable after startup and passed explicitly
// into every component constructor; nothing reads configuration through
// package-level state.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the usermgrd configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Socket is the unix socket the daemon serves its API on
	Socket SocketConfig `mapstructure:"socket" yaml:"socket"`

	// Allocator holds the uid/gid allocation ranges and retry bounds
	Allocator AllocatorConfig `mapstructure:"allocator" yaml:"allocator"`

	// Directory configures the LDAP backend
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`

	// Kerberos configures the KDC admin backend
	Kerberos KerberosConfig `mapstructure:"kerberos" yaml:"kerberos"`

	// Homedir configures the home-directory collaborator daemon
	Homedir CollabConfig `mapstructure:"homedir" yaml:"homedir"`

	// NSSCache configures the cache-flush collaborator daemon
	NSSCache CollabConfig `mapstructure:"nsscache" yaml:"nsscache"`

	// Auth restricts which caller principal may create users
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SocketConfig describes the daemon's listening socket. The socket file
// is chowned and chmodded after bind so that only the fronting proxy
// can reach the API.
type SocketConfig struct {
	// Path of the unix socket (required)
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// Owner and Group of the socket file; empty leaves the process defaults
	Owner string `mapstructure:"owner" yaml:"owner,omitempty"`
	Group string `mapstructure:"group" yaml:"group,omitempty"`

	// Mode of the socket file, octal string in config files ("0660")
	Mode fs.FileMode `mapstructure:"mode" yaml:"mode,omitempty"`
}

// AllocatorConfig holds the uid/gid allocation ranges. The gid range may
// be disjoint from the uid range; single-range deployments set both to
// the same bounds.
type AllocatorConfig struct {
	MinUID int `mapstructure:"min_uid" validate:"required,gt=0" yaml:"min_uid"`
	MaxUID int `mapstructure:"max_uid" validate:"required,gtfield=MinUID" yaml:"max_uid"`
	MinGID int `mapstructure:"min_gid" validate:"required,gt=0" yaml:"min_gid"`
	MaxGID int `mapstructure:"max_gid" validate:"required,gtfield=MinGID" yaml:"max_gid"`

	// MaxAttempts bounds candidate draws per allocation before giving up
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0" yaml:"max_attempts"`

	// MaxSagaRetries bounds full create-saga restarts after a directory
	// conflict (lost allocation race)
	MaxSagaRetries int `mapstructure:"max_saga_retries" validate:"required,gt=0" yaml:"max_saga_retries"`
}

// DirectoryConfig configures the LDAP backend.
type DirectoryConfig struct {
	// URL of the directory server, e.g. ldap://localhost or ldaps://ldap.example.com
	URL string `mapstructure:"url" validate:"required" yaml:"url"`

	// BindDN and BindPassword are the service identity with write privilege
	BindDN       string `mapstructure:"bind_dn" validate:"required" yaml:"bind_dn"`
	BindPassword string `mapstructure:"bind_password" yaml:"bind_password,omitempty"`

	// PeopleBase and GroupBase are the base DNs entries are created under
	PeopleBase string `mapstructure:"people_base" validate:"required" yaml:"people_base"`
	GroupBase  string `mapstructure:"group_base" validate:"required" yaml:"group_base"`

	// ExtraObjectClasses are appended to the person entry's object classes
	ExtraObjectClasses []string `mapstructure:"extra_object_classes" yaml:"extra_object_classes,omitempty"`

	// HomeTemplate builds the homeDirectory attribute; {user} is replaced
	// by the username
	HomeTemplate string `mapstructure:"home_template" validate:"required,contains={user}" yaml:"home_template"`

	// LoginShell written into the person entry
	LoginShell string `mapstructure:"login_shell" yaml:"login_shell"`

	// Timeout per directory operation
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0" yaml:"timeout"`

	// MaxRetries and RetryBackoff bound transient-failure retries
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0" yaml:"retry_backoff"`
}

// Kerberos expiry and deletion policies.
const (
	// ExpiryNever enables new principals immediately.
	ExpiryNever = "never"
	// ExpiryYesterday creates principals already expired; a separate
	// activation step lifts the expiry later.
	ExpiryYesterday = "yesterday"

	// DeletePolicyDelete removes principals outright.
	DeletePolicyDelete = "delete"
	// DeletePolicyExpire soft-disables principals by dating their expiry
	// into the past instead of deleting them.
	DeletePolicyExpire = "expire"
)

// KerberosConfig configures the KDC admin backend. usermgrd
// authenticates to kadmind with its own service keytab, independent of
// any inbound caller authentication.
type KerberosConfig struct {
	// AdminPrincipal used for kadmin authentication, e.g. usermgrd/host@REALM
	AdminPrincipal string `mapstructure:"admin_principal" validate:"required" yaml:"admin_principal"`

	// Keytab holding the admin principal's key
	Keytab string `mapstructure:"keytab" validate:"required" yaml:"keytab"`

	// Realm new principals are created in
	Realm string `mapstructure:"realm" validate:"required" yaml:"realm"`

	// KadminPath is the kadmin binary; default found via PATH
	KadminPath string `mapstructure:"kadmin_path" yaml:"kadmin_path,omitempty"`

	// Expiry policy for new principals: never, yesterday, or an RFC3339 date
	Expiry string `mapstructure:"expiry" validate:"required" yaml:"expiry"`

	// DeletePolicy selects hard delete or soft disable on user removal
	DeletePolicy string `mapstructure:"delete_policy" validate:"required,oneof=delete expire" yaml:"delete_policy"`

	// Timeout per kadmin invocation
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0" yaml:"timeout"`
}

// CollabConfig points at a collaborator daemon reached over a local
// unix socket (mkhomedird, nscdflushd).
type CollabConfig struct {
	// Socket path of the collaborator's unix socket
	Socket string `mapstructure:"socket" validate:"required" yaml:"socket"`

	// Timeout per request
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0" yaml:"timeout"`
}

// AuthConfig restricts creation to one caller principal. The caller's
// identity is asserted by the fronting GSSAPI proxy and forwarded in a
// request header; usermgrd only compares it against this value.
type AuthConfig struct {
	AuthorizedPrincipal string `mapstructure:"authorized_principal" yaml:"authorized_principal,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics listener is started.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  usermgrd init\n\n"+
				"Or specify a custom config file:\n"+
				"  usermgrd <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  usermgrd init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format. The file is written 0600 since it carries the directory bind
// password.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config
// file settings. Environment variables use the USERMGRD_ prefix,
// e.g. USERMGRD_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("USERMGRD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		fileModeDecodeHook(),
		durationDecodeHook(),
	)
}

// fileModeDecodeHook converts octal strings like "0660" to fs.FileMode.
func fileModeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(fs.FileMode(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			mode, err := strconv.ParseUint(v, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid file mode %q: %w", v, err)
			}
			return fs.FileMode(mode), nil
		case int:
			return fs.FileMode(v), nil
		case int64:
			return fs.FileMode(v), nil
		case float64:
			return fs.FileMode(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses
// XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the
// current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "usermgrd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "usermgrd")
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// InitConfigToPath writes a sample configuration file to the given path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}
	return SaveConfig(GetDefaultConfig(), path)
}

// InitConfig writes a sample configuration file to the default location
// and returns its path.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}
