// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adaptorlib/config.yaml",
	"/etc/adaptorlib/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      3857,
			Hostname:  "0.0.0.0",
			Secure:    true,
			KeyAlias:  "",
			KeyStore:  "",
			DocIdPath: "/doc/",
		},
		GSA: GSAConfig{
			Hostname:           "",
			CharacterEncoding:  "UTF-8",
			Datasource:         "adaptorlib",
			ApplianceAllowlist: []string{},
		},
		Adaptor: AdaptorConfig{
			FullListingSchedule:   "0 2 * * *",
			IncrementalPollPeriod: 15 * time.Second,
			SendDocControls:       true,
			FeedRetryMaxAttempts:  5,
		},
		Security: SecurityConfig{
			SessionCookieName:         "adaptorlib_session",
			SessionCookieSecure:       true,
			SessionTTL:                30 * time.Minute,
			SessionSweepPeriod:        5 * time.Minute,
			RequireClientCertForAuthz: false,
			RelayStateSecret:          "",
			RelayStateTTL:             5 * time.Minute,
			Casbin: CasbinConfig{
				ModelPath:  "",
				PolicyPath: "",
			},
			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		SAML: SAMLConfig{
			IdPSSOURL:        "",
			IdPIssuer:        "",
			SPIssuer:         "",
			ACSURL:           "",
			TrustedCertPaths: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// GSA_HOSTNAME -> gsa.hostname
	// SAML_IDP_SSO_URL -> saml.idp_sso_url
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"gsa.appliance_allowlist",
	"security.cors_origins",
	"saml.trusted_cert_paths",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
// It handles the mapping from flat environment variable names to the nested
// configuration structure.
//
// Examples:
//   - GSA_HOSTNAME -> gsa.hostname
//   - SERVER_PORT -> server.port
//   - SAML_IDP_SSO_URL -> saml.idp_sso_url
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"server_port":        "server.port",
		"server_hostname":    "server.hostname",
		"server_secure":      "server.secure",
		"server_key_alias":   "server.key_alias",
		"server_key_store":   "server.key_store",
		"server_doc_id_path": "server.doc_id_path",

		// GSA mappings
		"gsa_hostname":            "gsa.hostname",
		"gsa_character_encoding":  "gsa.character_encoding",
		"gsa_datasource":          "gsa.datasource",
		"gsa_appliance_allowlist": "gsa.appliance_allowlist",

		// Adaptor mappings
		"adaptor_full_listing_schedule":   "adaptor.full_listing_schedule",
		"adaptor_incremental_poll_period": "adaptor.incremental_poll_period",
		"adaptor_send_doc_controls":       "adaptor.send_doc_controls",
		"adaptor_feed_retry_max_attempts": "adaptor.feed_retry_max_attempts",

		// Security mappings
		"session_cookie_name":           "security.session_cookie_name",
		"session_cookie_secure":         "security.session_cookie_secure",
		"session_ttl":                   "security.session_ttl",
		"session_sweep_period":          "security.session_sweep_period",
		"require_client_cert_for_authz": "security.require_client_cert_for_authz",
		"relay_state_secret":            "security.relay_state_secret",
		"relay_state_ttl":               "security.relay_state_ttl",
		"cors_origins":                  "security.cors_origins",
		"rate_limit_requests":           "security.rate_limit_requests",
		"rate_limit_window":             "security.rate_limit_window",

		// Casbin mappings
		"casbin_model_path":  "security.casbin.model_path",
		"casbin_policy_path": "security.casbin.policy_path",

		// SAML mappings
		"saml_idp_sso_url":        "saml.idp_sso_url",
		"saml_idp_issuer":         "saml.idp_issuer",
		"saml_sp_issuer":          "saml.sp_issuer",
		"saml_acs_url":            "saml.acs_url",
		"saml_trusted_cert_paths": "saml.trusted_cert_paths",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage.
// This is useful for:
//   - Hot-reload scenarios (with proper mutex protection)
//   - Custom configuration sources
//   - Testing with mock configurations
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// Note: The caller is responsible for mutex protection when accessing
// configuration during reloads.
//
// Example usage:
//
//	var cfgMu sync.RWMutex
//	var cfg *Config
//
//	err := WatchConfigFile(configPath, func() {
//	    cfgMu.Lock()
//	    defer cfgMu.Unlock()
//	    newCfg, err := LoadWithKoanf()
//	    if err != nil {
//	        log.Printf("Config reload failed: %v", err)
//	        return
//	    }
//	    cfg = newCfg
//	    log.Println("Configuration reloaded successfully")
//	})
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	// Start watching the file for changes
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
