// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package samlauth

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/adaptorlib/internal/logging"
)

// idpCertPattern extracts the base64 body of every <X509Certificate>
// element in an IdP SAML metadata document. As with signedInfoPattern,
// this is a literal-substring extraction rather than a full metadata
// parse: IdP metadata documents vary in namespace prefixing but the
// element body is always just the DER certificate, base64-encoded.
var idpCertPattern = regexp.MustCompile(`(?s)<(?:\w+:)?X509Certificate[^>]*>(.*?)</(?:\w+:)?X509Certificate>`)

// IdPCertCache periodically refreshes the set of certificates trusted
// to sign SAML assertions from the IdP's metadata endpoint, so a
// signing key rotation at the IdP does not require an adaptor restart.
type IdPCertCache struct {
	metadataURL string
	httpClient  *http.Client
	ttl         time.Duration
	logger      *zerolog.Logger

	mu          sync.RWMutex
	certs       []*TrustedCertificate
	fingerprint map[string]struct{}
	fetched     time.Time
	initialized bool
}

// NewIdPCertCache creates a cache that fetches trusted signing
// certificates from metadataURL, refreshing at most once per ttl.
func NewIdPCertCache(metadataURL string, client *http.Client, ttl time.Duration, logger *zerolog.Logger) *IdPCertCache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &IdPCertCache{
		metadataURL: metadataURL,
		httpClient:  client,
		ttl:         ttl,
		logger:      logger,
		fingerprint: make(map[string]struct{}),
	}
}

func (c *IdPCertCache) log() zerolog.Logger {
	if c.logger != nil {
		return *c.logger
	}
	return logging.Logger()
}

// Certificates returns the currently trusted certificate set,
// refreshing from the metadata endpoint first if the cache has
// expired. On a refresh failure it logs and falls back to the
// last-known-good set rather than failing assertion verification
// outright.
func (c *IdPCertCache) Certificates(ctx context.Context) []*TrustedCertificate {
	c.mu.RLock()
	certs := c.certs
	expired := time.Since(c.fetched) > c.ttl
	c.mu.RUnlock()

	if !expired && certs != nil {
		return certs
	}

	refreshed, err := c.refresh(ctx)
	if err != nil {
		if certs != nil {
			c.log().Warn().Err(err).Msg("samlauth: IdP metadata refresh failed, using cached certificates")
			return certs
		}
		c.log().Err(err).Msg("samlauth: IdP metadata refresh failed and no cached certificates available")
		return nil
	}
	return refreshed
}

func (c *IdPCertCache) refresh(ctx context.Context) ([]*TrustedCertificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.fetched) < c.ttl && c.certs != nil {
		return c.certs, nil
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.metadataURL, http.NoBody)
	if err != nil {
		idpCertFetchErrors.WithLabelValues("request_creation").Inc()
		return nil, fmt.Errorf("samlauth: build metadata request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		idpCertFetchErrors.WithLabelValues("network").Inc()
		return nil, fmt.Errorf("samlauth: fetch IdP metadata: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		idpCertFetchErrors.WithLabelValues("http_status").Inc()
		return nil, fmt.Errorf("samlauth: IdP metadata fetch status %d", resp.StatusCode)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		idpCertFetchErrors.WithLabelValues("read_body").Inc()
		return nil, fmt.Errorf("samlauth: read IdP metadata: %w", err)
	}

	matches := idpCertPattern.FindAllSubmatch(buf, -1)
	newCerts := make([]*TrustedCertificate, 0, len(matches))
	newFingerprints := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		der, err := base64.StdEncoding.DecodeString(stripWhitespace(string(m[1])))
		if err != nil {
			continue
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			idpCertFetchErrors.WithLabelValues("parse").Inc()
			continue
		}
		newCerts = append(newCerts, &TrustedCertificate{Cert: cert})
		sum := sha256.Sum256(der)
		newFingerprints[base64.StdEncoding.EncodeToString(sum[:])] = struct{}{}
	}

	if len(newCerts) == 0 {
		idpCertFetchErrors.WithLabelValues("no_certificates").Inc()
		return nil, fmt.Errorf("samlauth: IdP metadata contained no parseable X509 certificates")
	}

	c.detectRotation(newFingerprints)

	c.certs = newCerts
	c.fingerprint = newFingerprints
	c.fetched = time.Now()
	c.initialized = true

	idpCertKeysTotal.Set(float64(len(newCerts)))
	idpCertFetchDuration.Observe(time.Since(start).Seconds())

	return c.certs, nil
}

func (c *IdPCertCache) detectRotation(newFingerprints map[string]struct{}) {
	if !c.initialized {
		return
	}
	changed := false
	for fp := range newFingerprints {
		if _, ok := c.fingerprint[fp]; !ok {
			changed = true
			break
		}
	}
	if !changed {
		for fp := range c.fingerprint {
			if _, ok := newFingerprints[fp]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		idpCertRotations.Inc()
		c.log().Info().Int("certificate_count", len(newFingerprints)).Msg("samlauth: IdP signing certificate rotation detected")
	}
}
