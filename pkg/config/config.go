// Package config loads the control plane's deployment settings from a
// YAML file, with environment variable overrides for anything that
// shouldn't live in a checked-in file (secrets, per-host addresses).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AuthType is the recognized authentication backend for REST Basic auth.
type AuthType string

const (
	AuthText     AuthType = "text"
	AuthLDAP     AuthType = "ldap"
	AuthLDAPSASL AuthType = "ldapsasl"
)

// Config is the control plane's full configuration surface.
type Config struct {
	// DeploymentName namespaces service log paths and is the value every
	// container is labeled with as zoe.prefix.
	DeploymentName string `yaml:"deployment_name"`
	// ServiceLogsBasePath is the root directory service logs are read
	// from.
	ServiceLogsBasePath string `yaml:"service_logs_base_path"`
	// AuthType selects the Basic-auth credential backend.
	AuthType AuthType `yaml:"auth_type"`
	// MasterAddress is this control plane's own advertised URL, used by
	// clients and by peers joining the Raft cluster.
	MasterAddress string `yaml:"master_address"`
	// ObserverSharedSecret is the bearer token the container event
	// observer must present to pkg/events.Ingest.
	ObserverSharedSecret string `yaml:"observer_shared_secret"`
	// GuestQuotaMaxExecutions caps concurrent non-terminal executions for
	// guest accounts.
	GuestQuotaMaxExecutions int `yaml:"guest_quota_max_executions"`
	// ContainerNamePrefix is an alias for DeploymentName kept for the
	// original configuration key's name; when unset it mirrors
	// DeploymentName.
	ContainerNamePrefix string `yaml:"container_name_prefix"`

	// StatsPollInterval is how often the cluster stats provider polls the
	// backend driver.
	StatsPollInterval time.Duration `yaml:"stats_poll_interval"`
	// SchedulerTickInterval drives a scheduling pass absent other
	// triggers.
	SchedulerTickInterval time.Duration `yaml:"scheduler_tick_interval"`
	// DataDir is the BoltDB file's directory.
	DataDir string `yaml:"data_dir"`
	// BindAddr is the REST/Raft listen address.
	BindAddr string `yaml:"bind_addr"`
	// MetricsAddr is read from configuration but no listener binds it;
	// /metrics is served on BindAddr alongside the REST API.
	MetricsAddr string `yaml:"metrics_addr"`
	// SessionSigningKey signs the <uid>.<role> session cookie. Generated
	// at random if left empty, which invalidates sessions across
	// restarts — set explicitly for a multi-process deployment.
	SessionSigningKey string `yaml:"session_signing_key"`
	// CORSAllowedOrigins lists the origins the REST API accepts
	// cross-origin requests from. Left empty, the API falls back to "*"
	// and serves the zoe_session cookie without AllowCredentials, since
	// browsers refuse a wildcard origin paired with credentialed
	// requests; set this explicitly to allow the cookie flow cross-origin.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// Default returns a Config with every field set to its documented
// default.
func Default() Config {
	return Config{
		DeploymentName:          "zoe",
		ServiceLogsBasePath:     "/var/log/zoe",
		AuthType:                AuthText,
		GuestQuotaMaxExecutions: 1,
		StatsPollInterval:       5 * time.Second,
		SchedulerTickInterval:   5 * time.Second,
		DataDir:                 "/var/lib/zoe",
		BindAddr:                "0.0.0.0:8080",
		MetricsAddr:             "0.0.0.0:9090",
	}
}

// Load reads a YAML config file (if path is non-empty) over Default(),
// then applies environment variable overrides, one per field, all
// prefixed ZOE_.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.ContainerNamePrefix == "" {
		cfg.ContainerNamePrefix = cfg.DeploymentName
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv("ZOE_DEPLOYMENT_NAME"); ok {
		cfg.DeploymentName = v
	}
	if v, ok := os.LookupEnv("ZOE_SERVICE_LOGS_BASE_PATH"); ok {
		cfg.ServiceLogsBasePath = v
	}
	if v, ok := os.LookupEnv("ZOE_AUTH_TYPE"); ok {
		cfg.AuthType = AuthType(v)
	}
	if v, ok := os.LookupEnv("ZOE_MASTER_ADDRESS"); ok {
		cfg.MasterAddress = v
	}
	if v, ok := os.LookupEnv("ZOE_OBSERVER_SHARED_SECRET"); ok {
		cfg.ObserverSharedSecret = v
	}
	if v, ok := os.LookupEnv("ZOE_GUEST_QUOTA_MAX_EXECUTIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ZOE_GUEST_QUOTA_MAX_EXECUTIONS: %w", err)
		}
		cfg.GuestQuotaMaxExecutions = n
	}
	if v, ok := os.LookupEnv("ZOE_CONTAINER_NAME_PREFIX"); ok {
		cfg.ContainerNamePrefix = v
	}
	if v, ok := os.LookupEnv("ZOE_STATS_POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ZOE_STATS_POLL_INTERVAL: %w", err)
		}
		cfg.StatsPollInterval = d
	}
	if v, ok := os.LookupEnv("ZOE_SCHEDULER_TICK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ZOE_SCHEDULER_TICK_INTERVAL: %w", err)
		}
		cfg.SchedulerTickInterval = d
	}
	if v, ok := os.LookupEnv("ZOE_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("ZOE_BIND_ADDR"); ok {
		cfg.BindAddr = v
	}
	if v, ok := os.LookupEnv("ZOE_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := os.LookupEnv("ZOE_SESSION_SIGNING_KEY"); ok {
		cfg.SessionSigningKey = v
	}
	if v, ok := os.LookupEnv("ZOE_CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSAllowedOrigins = strings.Split(v, ",")
	}
	return nil
}
