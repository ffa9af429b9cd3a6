// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package samlauth implements the SAML 2.0 Web Browser SSO authn
// handler: issuing an HTTP-Redirect AuthnRequest to the Appliance's
// IdP, consuming the HTTP-POST Response at the assertion consumer
// endpoint, verifying its XML-DSig signature, and binding the result
// to a session.
package samlauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// relayStateClaims binds a pending AuthnRequest to the session that
// initiated it, so the assertion consumer endpoint can verify
// InResponseTo and the original URL without needing server-side
// storage keyed by RelayState — the JWT signature is the trust
// boundary, grounded on the same HS256 claims-signing pattern used
// elsewhere for session tokens.
type relayStateClaims struct {
	SessionID       string `json:"sid"`
	AuthnRequestID  string `json:"rid"`
	OriginalURL     string `json:"url"`
	jwt.RegisteredClaims
}

// RelayStateSigner signs and verifies RelayState tokens.
type RelayStateSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewRelayStateSigner constructs a signer. secret must be non-empty;
// ttl bounds how long a pending AuthnRequest may remain outstanding
// before its RelayState token is rejected as stale.
func NewRelayStateSigner(secret []byte, ttl time.Duration) (*RelayStateSigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("samlauth: relay state secret must not be empty")
	}
	return &RelayStateSigner{secret: secret, ttl: ttl}, nil
}

// Sign produces an opaque RelayState token binding sessionID to
// authnRequestID and the URL the user originally requested.
func (s *RelayStateSigner) Sign(sessionID, authnRequestID, originalURL string) (string, error) {
	now := time.Now()
	claims := relayStateClaims{
		SessionID:      sessionID,
		AuthnRequestID: authnRequestID,
		OriginalURL:    originalURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("samlauth: sign relay state: %w", err)
	}
	return signed, nil
}

// RelayState is the verified content of a RelayState token.
type RelayState struct {
	SessionID      string
	AuthnRequestID string
	OriginalURL    string
}

// Verify parses and validates a RelayState token, rejecting expired or
// tampered tokens.
func (s *RelayStateSigner) Verify(token string) (*RelayState, error) {
	claims := &relayStateClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method)
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("samlauth: invalid relay state: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("samlauth: relay state token rejected")
	}
	return &RelayState{
		SessionID:      claims.SessionID,
		AuthnRequestID: claims.AuthnRequestID,
		OriginalURL:    claims.OriginalURL,
	}, nil
}
