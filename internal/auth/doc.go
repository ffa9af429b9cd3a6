// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

/*
Package auth issues and validates the bearer tokens used by the
operator-facing admin surface: triggering a manual full-listing push,
inspecting feed status, and editing the coarse Casbin policy that sits
in front of per-DocId ACL evaluation. End-user authentication against
the Appliance is handled separately by internal/samlauth.

JWTManager signs and verifies HS256 tokens carrying a username and
role, reusing the controller's RelayState signing secret
(config.SecurityConfig.RelayStateSecret) and session TTL rather than
tracking a second admin-only secret.

Usage Example:

	import (
	    "github.com/tomtom215/adaptorlib/internal/auth"
	    "github.com/tomtom215/adaptorlib/internal/config"
	)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    log.Fatal(err)
	}

	token, err := jwtManager.GenerateToken("alice", "operator")
	if err != nil {
	    log.Fatal(err)
	}

	claims, err := jwtManager.ValidateToken(token)

Security:

  - HMAC-SHA256 (HS256) signing; the signing method is checked on parse
    to reject algorithm-confusion attacks
  - Tokens are stateless and cannot be revoked before expiration
  - Callers are expected to carry the token in an Authorization header
    or an HTTP-only cookie

See Also:

  - internal/samlauth: end-user SAML authn and session establishment
  - internal/authz: the coarse authorization gate tokens issued here unlock
*/
package auth
