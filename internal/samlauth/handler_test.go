// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package samlauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/adaptorlib/internal/session"
)

const testSignedInfo = `<ds:SignedInfo><ds:SignatureMethod Algorithm="http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"/><ds:Reference><ds:DigestValue>abc</ds:DigestValue></ds:Reference></ds:SignedInfo>`

const testIdPIssuer = "https://idp.example.com/"
const testACSURL = "https://adaptor.example.com/samlassertionconsumer"

const responseTemplate = `<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="_resp1" InResponseTo="%s" IssueInstant="2026-08-01T00:00:00Z" Destination="%s">
  <saml:Issuer>%s</saml:Issuer>
  <samlp:Status><samlp:StatusCode Value="urn:oasis:names:tc:SAML:2.0:status:Success"/></samlp:Status>
  <saml:Assertion ID="_assert1">
    <ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#">
      %s
      <ds:SignatureValue>%s</ds:SignatureValue>
    </ds:Signature>
    <saml:Subject><saml:NameID>alice</saml:NameID></saml:Subject>
    <saml:Conditions NotBefore="%s" NotOnOrAfter="%s"/>
    <saml:AttributeStatement>
      <saml:Attribute Name="memberOf"><saml:AttributeValue>engineering</saml:AttributeValue></saml:Attribute>
    </saml:AttributeStatement>
  </saml:Assertion>
</samlp:Response>`

func buildSignedResponse(t *testing.T, key *rsa.PrivateKey, inResponseTo string) []byte {
	t.Helper()
	notBefore := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	notOnOrAfter := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	return buildSignedResponseWith(t, key, inResponseTo, testACSURL, testIdPIssuer, notBefore, notOnOrAfter)
}

func buildSignedResponseWith(t *testing.T, key *rsa.PrivateKey, inResponseTo, destination, issuer, notBefore, notOnOrAfter string) []byte {
	t.Helper()
	h := sha256.Sum256([]byte(testSignedInfo))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
	require.NoError(t, err)
	sigValue := base64.StdEncoding.EncodeToString(sig)
	doc := fmt.Sprintf(responseTemplate, inResponseTo, destination, issuer, testSignedInfo, sigValue, notBefore, notOnOrAfter)
	return []byte(doc)
}

func newTestHandler(t *testing.T) (*Handler, *rsa.PrivateKey, *session.Manager) {
	t.Helper()
	key, trusted := generateTestCert(t)
	relayState, err := NewRelayStateSigner([]byte("test-secret-key-value"), time.Minute)
	require.NoError(t, err)
	sessions := session.New(time.Hour, time.Millisecond)

	h, err := New(Config{
		IdPSSOURL:           "https://idp.example.com/sso",
		IdPIssuer:           testIdPIssuer,
		SPIssuer:            "https://adaptor.example.com/",
		ACSURL:              testACSURL,
		TrustedCertificates: []*TrustedCertificate{trusted},
		RelayState:          relayState,
		Sessions:            sessions,
		CookieName:          "adaptorlib_session",
	})
	require.NoError(t, err)
	return h, key, sessions
}

func TestRedirectToIdPSetsSAMLRequestAndRelayState(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/doc/1", nil)
	rec := httptest.NewRecorder()
	h.RedirectToIdP(rec, req, "https://adaptor.example.com/doc/1")

	assert.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.NotEmpty(t, loc.Query().Get("SAMLRequest"))
	assert.NotEmpty(t, loc.Query().Get("RelayState"))
}

func TestAssertionConsumerEstablishesSession(t *testing.T) {
	h, key, sessions := newTestHandler(t)

	// Simulate the pending session RedirectToIdP would have created.
	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Put(inResponseToSlot, "_req1")

	relayToken, err := h.cfg.RelayState.Sign(sess.ID, "_req1", "https://adaptor.example.com/doc/1")
	require.NoError(t, err)

	rawResponse := buildSignedResponse(t, key, "_req1")
	encoded := base64.StdEncoding.EncodeToString(rawResponse)

	form := url.Values{"SAMLResponse": {encoded}, "RelayState": {relayToken}}
	req := httptest.NewRequest(http.MethodPost, "/samlassertionconsumer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.AssertionConsumer().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://adaptor.example.com/doc/1", rec.Header().Get("Location"))

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "adaptorlib_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	updated, err := sessions.Get(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Principal)
	assert.Contains(t, updated.Groups, "engineering")
}

func TestAssertionConsumerRejectsReplayedInResponseTo(t *testing.T) {
	h, key, sessions := newTestHandler(t)

	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Put(inResponseToSlot, "_req1")
	sess.Put(consumedPrefix+"_req1", true)

	relayToken, err := h.cfg.RelayState.Sign(sess.ID, "_req1", "https://adaptor.example.com/doc/1")
	require.NoError(t, err)

	rawResponse := buildSignedResponse(t, key, "_req1")
	encoded := base64.StdEncoding.EncodeToString(rawResponse)

	form := url.Values{"SAMLResponse": {encoded}, "RelayState": {relayToken}}
	req := httptest.NewRequest(http.MethodPost, "/samlassertionconsumer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.AssertionConsumer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssertionConsumerRejectsIssuerMismatch(t *testing.T) {
	h, key, sessions := newTestHandler(t)

	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Put(inResponseToSlot, "_req1")

	relayToken, err := h.cfg.RelayState.Sign(sess.ID, "_req1", "https://adaptor.example.com/doc/1")
	require.NoError(t, err)

	notBefore := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	notOnOrAfter := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rawResponse := buildSignedResponseWith(t, key, "_req1", testACSURL, "https://attacker.example.com/", notBefore, notOnOrAfter)
	encoded := base64.StdEncoding.EncodeToString(rawResponse)

	form := url.Values{"SAMLResponse": {encoded}, "RelayState": {relayToken}}
	req := httptest.NewRequest(http.MethodPost, "/samlassertionconsumer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.AssertionConsumer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssertionConsumerRejectsDestinationMismatch(t *testing.T) {
	h, key, sessions := newTestHandler(t)

	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Put(inResponseToSlot, "_req1")

	relayToken, err := h.cfg.RelayState.Sign(sess.ID, "_req1", "https://adaptor.example.com/doc/1")
	require.NoError(t, err)

	notBefore := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	notOnOrAfter := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rawResponse := buildSignedResponseWith(t, key, "_req1", "https://attacker.example.com/acs", testIdPIssuer, notBefore, notOnOrAfter)
	encoded := base64.StdEncoding.EncodeToString(rawResponse)

	form := url.Values{"SAMLResponse": {encoded}, "RelayState": {relayToken}}
	req := httptest.NewRequest(http.MethodPost, "/samlassertionconsumer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.AssertionConsumer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssertionConsumerRejectsExpiredAssertion(t *testing.T) {
	h, key, sessions := newTestHandler(t)

	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Put(inResponseToSlot, "_req1")

	relayToken, err := h.cfg.RelayState.Sign(sess.ID, "_req1", "https://adaptor.example.com/doc/1")
	require.NoError(t, err)

	notBefore := time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)
	notOnOrAfter := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	rawResponse := buildSignedResponseWith(t, key, "_req1", testACSURL, testIdPIssuer, notBefore, notOnOrAfter)
	encoded := base64.StdEncoding.EncodeToString(rawResponse)

	form := url.Values{"SAMLResponse": {encoded}, "RelayState": {relayToken}}
	req := httptest.NewRequest(http.MethodPost, "/samlassertionconsumer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.AssertionConsumer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAssertionConsumerRejectsBadSignature(t *testing.T) {
	h, _, sessions := newTestHandler(t)
	otherKey, _ := generateTestCert(t)

	sess, err := sessions.Create()
	require.NoError(t, err)
	sess.Put(inResponseToSlot, "_req1")

	relayToken, err := h.cfg.RelayState.Sign(sess.ID, "_req1", "https://adaptor.example.com/doc/1")
	require.NoError(t, err)

	rawResponse := buildSignedResponse(t, otherKey, "_req1")
	encoded := base64.StdEncoding.EncodeToString(rawResponse)

	form := url.Values{"SAMLResponse": {encoded}, "RelayState": {relayToken}}
	req := httptest.NewRequest(http.MethodPost, "/samlassertionconsumer", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.AssertionConsumer().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
