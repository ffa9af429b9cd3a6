// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package config holds the adaptor controller's own configuration
// surface: the document-serving HTTP listener, the Appliance it talks
// to, the SAML authn/authz exchange, coarse authorization policy, and
// logging. Configuration loads in layers (defaults, then an optional
// YAML file, then environment variables) via Koanf v2, mirroring the
// teacher's layered-loading approach.
package config

import (
	"fmt"
	"time"
)

// Config is the adaptor controller's complete configuration surface.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	GSA      GSAConfig      `koanf:"gsa"`
	Adaptor  AdaptorConfig  `koanf:"adaptor"`
	Security SecurityConfig `koanf:"security"`
	SAML     SAMLConfig     `koanf:"saml"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the document-serving HTTPS listener settings.
type ServerConfig struct {
	Port      int    `koanf:"port"`
	Hostname  string `koanf:"hostname"`
	Secure    bool   `koanf:"secure"`     // serve HTTPS; the Appliance requires TLS for document content
	KeyAlias  string `koanf:"key_alias"`  // alias of the TLS keypair within KeyStore
	KeyStore  string `koanf:"key_store"`  // path to a PEM directory holding the listener's TLS keypair
	DocIdPath string `koanf:"doc_id_path"` // base path documents are served under, e.g. "/doc/"
}

// GSAConfig describes the Appliance this adaptor pushes feeds to and
// serves documents for.
type GSAConfig struct {
	Hostname           string   `koanf:"hostname"`
	CharacterEncoding  string   `koanf:"character_encoding"`
	Datasource         string   `koanf:"datasource"`
	ApplianceAllowlist []string `koanf:"appliance_allowlist"` // IPs permitted to call the document handler and /saml-authz
}

// AdaptorConfig controls the feed push scheduling and the one-shot
// primary/fallback gate.
type AdaptorConfig struct {
	FullListingSchedule   string        `koanf:"full_listing_schedule"` // cron expression
	IncrementalPollPeriod time.Duration `koanf:"incremental_poll_period"`
	SendDocControls       bool          `koanf:"send_doc_controls"`
	FeedRetryMaxAttempts  int           `koanf:"feed_retry_max_attempts"`
}

// SecurityConfig configures session handling and the coarse
// authorization gate above per-DocId ACL evaluation.
type SecurityConfig struct {
	SessionCookieName   string        `koanf:"session_cookie_name"`
	SessionCookieSecure bool          `koanf:"session_cookie_secure"`
	SessionTTL          time.Duration `koanf:"session_ttl"`
	SessionSweepPeriod  time.Duration `koanf:"session_sweep_period"`

	// RequireClientCertForAuthz rejects (403) any /saml-authz request
	// that did not present a verified TLS client certificate, on top
	// of the listener's own "wanted, not required" TLS posture.
	RequireClientCertForAuthz bool `koanf:"require_client_cert_for_authz"`

	RelayStateSecret string        `koanf:"relay_state_secret"`
	RelayStateTTL    time.Duration `koanf:"relay_state_ttl"`

	Casbin CasbinConfig `koanf:"casbin"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// CasbinConfig configures the coarse RBAC/ABAC gate (IP allow-lists,
// manual-push authorization) sitting above per-DocId ACL evaluation.
type CasbinConfig struct {
	ModelPath  string `koanf:"model_path"`
	PolicyPath string `koanf:"policy_path"`
}

// SAMLConfig configures the authn exchange and the batch authz
// endpoint's trust material.
type SAMLConfig struct {
	IdPSSOURL        string   `koanf:"idp_sso_url"`
	IdPIssuer        string   `koanf:"idp_issuer"`
	SPIssuer         string   `koanf:"sp_issuer"`
	ACSURL           string   `koanf:"acs_url"`
	TrustedCertPaths []string `koanf:"trusted_cert_paths"`
}

// LoggingConfig mirrors the teacher's zerolog configuration surface.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that the loaded configuration is internally
// consistent enough to start the controller. It does not check that
// referenced files (keystores, cert paths) exist — Controller.Start
// surfaces those errors at the point of use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.DocIdPath == "" {
		return fmt.Errorf("config: server.doc_id_path is required")
	}
	if c.GSA.Hostname == "" {
		return fmt.Errorf("config: gsa.hostname is required")
	}
	if c.Adaptor.FullListingSchedule == "" {
		return fmt.Errorf("config: adaptor.full_listing_schedule is required")
	}
	if c.SAML.IdPSSOURL != "" {
		if c.SAML.SPIssuer == "" {
			return fmt.Errorf("config: saml.sp_issuer is required when saml.idp_sso_url is set")
		}
		if c.SAML.ACSURL == "" {
			return fmt.Errorf("config: saml.acs_url is required when saml.idp_sso_url is set")
		}
		if c.SAML.IdPIssuer == "" {
			return fmt.Errorf("config: saml.idp_issuer is required when saml.idp_sso_url is set")
		}
		if c.Security.RelayStateSecret == "" {
			return fmt.Errorf("config: security.relay_state_secret is required when SAML is configured")
		}
	}
	return nil
}
