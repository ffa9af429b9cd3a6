// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package samlauth

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/adaptorlib/internal/logging"
	"github.com/tomtom215/adaptorlib/internal/session"
)

// inResponseToSlot is the session slot key under which the most
// recently issued AuthnRequest ID is stored, so the assertion
// consumer endpoint can both match InResponseTo and reject a replayed
// Response reusing an InResponseTo already consumed.
const inResponseToSlot = "samlauth.pendingInResponseTo"
const consumedPrefix = "samlauth.consumed."

// clockSkew is the tolerance applied to Conditions NotBefore/NotOnOrAfter
// comparisons, accounting for drift between the adaptor's and the IdP's
// clocks.
const clockSkew = 5 * time.Minute

// Config configures a Handler.
type Config struct {
	// IdPSSOURL is the Appliance's SAML SSO endpoint the adaptor
	// redirects unauthenticated requests to.
	IdPSSOURL string
	// IdPIssuer is the Appliance IdP's SAML entity ID, required to match
	// the Issuer of every incoming Response.
	IdPIssuer string
	// SPIssuer is this adaptor's SAML entity ID.
	SPIssuer string
	// ACSURL is the externally reachable URL of the assertion consumer
	// endpoint this Handler serves, used both as
	// AssertionConsumerServiceURL and as the audience Destination.
	ACSURL string
	// TrustedCertificates verify the IdP's Response signature. Ignored
	// when CertCache is set.
	TrustedCertificates []*TrustedCertificate
	// CertCache, when set, supplies the trusted certificate set instead
	// of the static TrustedCertificates list, refreshing it from the
	// IdP's metadata endpoint so a signing key rotation does not
	// require an adaptor restart.
	CertCache *IdPCertCache
	// RelayState signs and verifies the RelayState token.
	RelayState *RelayStateSigner
	// Sessions is the session manager new authenticated sessions are
	// created in.
	Sessions *session.Manager
	// CookieName/CookieSecure configure the session cookie set on
	// successful authentication.
	CookieName   string
	CookieSecure bool

	Logger *zerolog.Logger
}

// Handler implements the SAML 2.0 Web Browser SSO authn exchange.
type Handler struct {
	cfg Config
}

// New constructs a Handler from cfg.
func New(cfg Config) (*Handler, error) {
	if cfg.IdPSSOURL == "" || cfg.IdPIssuer == "" || cfg.SPIssuer == "" || cfg.ACSURL == "" {
		return nil, fmt.Errorf("samlauth: IdPSSOURL, IdPIssuer, SPIssuer and ACSURL are required")
	}
	if cfg.RelayState == nil {
		return nil, fmt.Errorf("samlauth: RelayState signer is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("samlauth: Sessions manager is required")
	}
	return &Handler{cfg: cfg}, nil
}

func (h *Handler) log() zerolog.Logger {
	if h.cfg.Logger != nil {
		return *h.cfg.Logger
	}
	return logging.Logger()
}

// RedirectToIdP begins the SSO exchange: it issues a fresh session,
// builds and deflate-encodes an AuthnRequest, and redirects the
// browser to the IdP's SSO endpoint with the encoded request and a
// signed RelayState binding the pending exchange to the new session
// and the URL the user originally asked for.
func (h *Handler) RedirectToIdP(w http.ResponseWriter, r *http.Request, originalURL string) {
	sess, err := h.cfg.Sessions.Create()
	if err != nil {
		h.log().Err(err).Msg("samlauth: failed to create pending session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	reqID, err := newID()
	if err != nil {
		h.log().Err(err).Msg("samlauth: failed to generate AuthnRequest ID")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	sess.Put(inResponseToSlot, reqID)

	ar := authnRequest{
		ID:                          reqID,
		Version:                     "2.0",
		IssueInstant:                time.Now().UTC().Format(time.RFC3339),
		Destination:                 h.cfg.IdPSSOURL,
		AssertionConsumerServiceURL: h.cfg.ACSURL,
		ProtocolBinding:             "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST",
		Issuer:                      h.cfg.SPIssuer,
	}
	encoded, err := encodeRedirectMessage(ar)
	if err != nil {
		h.log().Err(err).Msg("samlauth: failed to encode AuthnRequest")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	relayState, err := h.cfg.RelayState.Sign(sess.ID, reqID, originalURL)
	if err != nil {
		h.log().Err(err).Msg("samlauth: failed to sign relay state")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	dest, err := url.Parse(h.cfg.IdPSSOURL)
	if err != nil {
		h.log().Err(err).Msg("samlauth: invalid IdP SSO URL")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	q := dest.Query()
	q.Set("SAMLRequest", encoded)
	q.Set("RelayState", relayState)
	dest.RawQuery = q.Encode()

	http.Redirect(w, r, dest.String(), http.StatusFound)
}

// encodeRedirectMessage deflates and base64-encodes a SAML protocol
// message for the HTTP-Redirect binding, per the SAML 2.0 bindings
// spec (DEFLATE encoding, no zlib/gzip header).
func encodeRedirectMessage(msg any) (string, error) {
	raw, err := xml.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("deflate writer: %w", err)
	}
	if _, err := fw.Write(raw); err != nil {
		return "", fmt.Errorf("deflate write: %w", err)
	}
	if err := fw.Close(); err != nil {
		return "", fmt.Errorf("deflate close: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// AssertionConsumer returns the http.HandlerFunc for the
// /samlassertionconsumer endpoint: it validates RelayState, enforces
// InResponseTo replay protection, checks the Response's status,
// Issuer, Destination and validity window, verifies the assertion's
// signature, and on success promotes the pending session to an
// authenticated one bound to the assertion's NameID and groups,
// redirecting the browser back to the originally requested URL.
func (h *Handler) AssertionConsumer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		encodedResponse := r.PostFormValue("SAMLResponse")
		relayStateToken := r.PostFormValue("RelayState")
		if encodedResponse == "" || relayStateToken == "" {
			http.Error(w, "missing SAMLResponse or RelayState", http.StatusBadRequest)
			return
		}

		relayState, err := h.cfg.RelayState.Verify(relayStateToken)
		if err != nil {
			h.log().Warn().Err(err).Msg("samlauth: rejected relay state")
			recordLogin("error", time.Since(start))
			http.Error(w, "invalid relay state", http.StatusBadRequest)
			return
		}

		sess, err := h.cfg.Sessions.Get(relayState.SessionID)
		if err != nil {
			h.log().Warn().Err(err).Msg("samlauth: relay state refers to unknown/expired session")
			recordLogin("error", time.Since(start))
			http.Error(w, "session expired", http.StatusBadRequest)
			return
		}

		pendingID, ok := sess.Get(inResponseToSlot)
		if !ok {
			recordLogin("error", time.Since(start))
			http.Error(w, "no pending authn request for session", http.StatusBadRequest)
			return
		}

		raw, err := base64.StdEncoding.DecodeString(encodedResponse)
		if err != nil {
			recordLogin("error", time.Since(start))
			http.Error(w, "malformed SAMLResponse", http.StatusBadRequest)
			return
		}

		var resp response
		if err := xml.Unmarshal(raw, &resp); err != nil {
			recordLogin("error", time.Since(start))
			http.Error(w, "malformed SAMLResponse", http.StatusBadRequest)
			return
		}

		if resp.InResponseTo != pendingID {
			h.log().Warn().Str("got", resp.InResponseTo).Str("want", fmt.Sprint(pendingID)).Msg("samlauth: InResponseTo mismatch")
			recordLogin("error", time.Since(start))
			http.Error(w, "InResponseTo mismatch", http.StatusBadRequest)
			return
		}
		if resp.InResponseTo != relayState.AuthnRequestID {
			recordLogin("error", time.Since(start))
			http.Error(w, "InResponseTo does not match relay state", http.StatusBadRequest)
			return
		}

		// Replay protection: once an InResponseTo has been consumed by
		// this session it can never be consumed again, independent of
		// whether the pending slot has since been overwritten.
		consumedKey := consumedPrefix + resp.InResponseTo
		if _, already := sess.Get(consumedKey); already {
			h.log().Warn().Str("inResponseTo", resp.InResponseTo).Msg("samlauth: replayed Response rejected")
			recordLogin("replayed", time.Since(start))
			http.Error(w, "response already consumed", http.StatusForbidden)
			return
		}
		sess.Put(consumedKey, true)
		sess.Delete(inResponseToSlot)

		if resp.Status.StatusCode.Value != statusSuccess {
			recordLogin("denied", time.Since(start))
			http.Error(w, "IdP denied authentication", http.StatusForbidden)
			return
		}

		if resp.Issuer != h.cfg.IdPIssuer {
			h.log().Warn().Str("got", resp.Issuer).Str("want", h.cfg.IdPIssuer).Msg("samlauth: Issuer mismatch")
			recordLogin("error", time.Since(start))
			http.Error(w, "issuer mismatch", http.StatusForbidden)
			return
		}

		if resp.Destination != h.cfg.ACSURL {
			h.log().Warn().Str("got", resp.Destination).Str("want", h.cfg.ACSURL).Msg("samlauth: Destination mismatch")
			recordLogin("error", time.Since(start))
			http.Error(w, "destination mismatch", http.StatusForbidden)
			return
		}

		if err := validateConditions(resp.Assertion.Conditions, time.Now()); err != nil {
			h.log().Warn().Err(err).Msg("samlauth: assertion outside its validity window")
			recordLogin("error", time.Since(start))
			http.Error(w, "assertion not valid at this time", http.StatusForbidden)
			return
		}

		if err := verifyAssertionSignature(raw, resp.Assertion.Signature, h.trustedCertificates(r.Context())); err != nil {
			h.log().Warn().Err(err).Msg("samlauth: signature verification failed")
			recordLogin("bad_signature", time.Since(start))
			http.Error(w, "signature verification failed", http.StatusForbidden)
			return
		}

		principal := resp.Assertion.Subject.NameID
		if principal == "" {
			recordLogin("error", time.Since(start))
			http.Error(w, "assertion carries no NameID", http.StatusForbidden)
			return
		}
		sess.Principal = principal
		sess.Groups = resp.Assertion.groups()

		http.SetCookie(w, &http.Cookie{
			Name:     h.cfg.CookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		recordLogin("success", time.Since(start))

		redirectTo := relayState.OriginalURL
		if redirectTo == "" {
			redirectTo = "/"
		}
		http.Redirect(w, r, redirectTo, http.StatusFound)
	}
}

// validateConditions enforces the assertion's Conditions validity window,
// per SAML 2.0 Core §2.5.1.2, tolerating clockSkew drift in either
// direction.
func validateConditions(c conditions, now time.Time) error {
	if c.NotBefore != "" {
		notBefore, err := time.Parse(time.RFC3339, c.NotBefore)
		if err != nil {
			return fmt.Errorf("parse NotBefore: %w", err)
		}
		if now.Before(notBefore.Add(-clockSkew)) {
			return fmt.Errorf("assertion not yet valid: NotBefore %s", notBefore)
		}
	}
	if c.NotOnOrAfter != "" {
		notOnOrAfter, err := time.Parse(time.RFC3339, c.NotOnOrAfter)
		if err != nil {
			return fmt.Errorf("parse NotOnOrAfter: %w", err)
		}
		if !now.Before(notOnOrAfter.Add(clockSkew)) {
			return fmt.Errorf("assertion expired: NotOnOrAfter %s", notOnOrAfter)
		}
	}
	return nil
}

func (h *Handler) trustedCertificates(ctx context.Context) []*TrustedCertificate {
	if h.cfg.CertCache != nil {
		return h.cfg.CertCache.Certificates(ctx)
	}
	return h.cfg.TrustedCertificates
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return fmt.Sprintf("_%x", b), nil
}
