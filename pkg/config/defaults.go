package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced, explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySocketDefaults(&cfg.Socket)
	applyAllocatorDefaults(&cfg.Allocator)
	applyDirectoryDefaults(&cfg.Directory)
	applyKerberosDefaults(&cfg.Kerberos)
	applyCollabDefaults(&cfg.Homedir, "/run/mkhomedird/socket")
	applyCollabDefaults(&cfg.NSSCache, "/run/nscdflushd/socket")
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applySocketDefaults(cfg *SocketConfig) {
	if cfg.Path == "" {
		cfg.Path = "/run/usermgrd/socket"
	}
	if cfg.Mode == 0 {
		cfg.Mode = 0660
	}
}

func applyAllocatorDefaults(cfg *AllocatorConfig) {
	if cfg.MinUID == 0 {
		cfg.MinUID = 10000
	}
	if cfg.MaxUID == 0 {
		cfg.MaxUID = 5000000
	}
	// gid range defaults to the uid range (the degenerate single-range
	// deployment)
	if cfg.MinGID == 0 {
		cfg.MinGID = cfg.MinUID
	}
	if cfg.MaxGID == 0 {
		cfg.MaxGID = cfg.MaxUID
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 100
	}
	if cfg.MaxSagaRetries == 0 {
		cfg.MaxSagaRetries = 3
	}
}

func applyDirectoryDefaults(cfg *DirectoryConfig) {
	if cfg.URL == "" {
		cfg.URL = "ldap://localhost"
	}
	if cfg.HomeTemplate == "" {
		cfg.HomeTemplate = "/home/{user}"
	}
	if cfg.LoginShell == "" {
		cfg.LoginShell = "/bin/bash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
}

func applyKerberosDefaults(cfg *KerberosConfig) {
	if cfg.KadminPath == "" {
		cfg.KadminPath = "kadmin"
	}
	if cfg.Expiry == "" {
		cfg.Expiry = ExpiryNever
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = DeletePolicyDelete
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
}

func applyCollabDefaults(cfg *CollabConfig, socket string) {
	if cfg.Socket == "" {
		cfg.Socket = socket
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults. Port defaults to 9090
// when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Directory: DirectoryConfig{
			BindDN:     "cn=usermgrd,ou=services,dc=example,dc=com",
			PeopleBase: "ou=people,dc=example,dc=com",
			GroupBase:  "ou=group,dc=example,dc=com",
		},
		Kerberos: KerberosConfig{
			AdminPrincipal: "usermgrd/localhost",
			Keytab:         "/etc/usermgrd/usermgrd.keytab",
			Realm:          "EXAMPLE.COM",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
