// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

/*
Package config provides centralized configuration management for adaptorlib.

It handles loading, validation, and layering of the controller's
configuration: the document-serving HTTP listener, the Appliance the
adaptor talks to, the feed push schedule, coarse authorization, SAML,
and logging.

# Configuration Sources

Configuration loads in three layers, each overriding the last:

  - Defaults: built-in sensible values
  - Config file: an optional YAML file (see DefaultConfigPaths, or
    point at one explicitly with the CONFIG_PATH environment variable)
  - Environment variables: highest priority, mapped through a fixed
    name table in envTransformFunc

# Configuration Structure

  - ServerConfig: document-serving HTTPS listener settings
  - GSAConfig: the Appliance's hostname, datasource, and calling-IP allowlist
  - AdaptorConfig: feed push scheduling
  - SecurityConfig: sessions, the coarse Casbin gate, CORS, rate limiting
  - SAMLConfig: IdP SSO endpoint, SP issuer/ACS URL, trusted signer certificates
  - LoggingConfig: zerolog level/format/caller settings

# Usage Example

	import "github.com/tomtom215/adaptorlib/internal/config"

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatalf("failed to load config: %v", err)
	}

	fmt.Printf("Listening on %s:%d\n", cfg.Server.Hostname, cfg.Server.Port)
	fmt.Printf("Appliance: %s\n", cfg.GSA.Hostname)

# Validation

Config.Validate checks that the controller has enough to start: a
valid listener port, a doc-id base path, an Appliance hostname, a feed
schedule, and — when SAML is configured — a SAML issuer, ACS URL, and
RelayState signing secret. It does not check that referenced files
(keystores, trusted certificate paths) exist on disk; those errors
surface when the controller starts.

# Thread Safety

The Config struct is immutable after LoadWithKoanf returns, making it
safe for concurrent access from multiple goroutines without
synchronization. WatchConfigFile supports hot-reload for deployments
that want to pick up a changed config file without a restart; the
caller is responsible for synchronizing access to the replaced Config.
*/
package config
