// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package samlauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// signedInfoFixture is the exact bytes signed and later re-extracted
// by the SignedInfo regexp; keeping it as one constant keeps the two
// sides of the test in lockstep.
const signedInfoFixture = `<SignedInfo><SignatureMethod Algorithm="http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"/><Reference><DigestValue>abc</DigestValue></Reference></SignedInfo>`

func generateTestCert(t *testing.T) (*rsa.PrivateKey, *TrustedCertificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-idp"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return key, &TrustedCertificate{Cert: cert}
}

func signFixture(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	h := sha256.Sum256([]byte(signedInfoFixture))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifyAssertionSignatureSucceeds(t *testing.T) {
	key, trusted := generateTestCert(t)
	sigValue := signFixture(t, key)

	raw := []byte("<Response>" + signedInfoFixture + "</Response>")
	sig := &signature{
		SignedInfo:     signedInfo{SignatureMethod: method{Algorithm: "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"}},
		SignatureValue: sigValue,
	}

	err := verifyAssertionSignature(raw, sig, []*TrustedCertificate{trusted})
	require.NoError(t, err)
}

func TestVerifyAssertionSignatureRejectsWrongCert(t *testing.T) {
	_, trusted := generateTestCert(t)
	otherKey, _ := generateTestCert(t)
	sigValue := signFixture(t, otherKey)

	raw := []byte("<Response>" + signedInfoFixture + "</Response>")
	sig := &signature{
		SignedInfo:     signedInfo{SignatureMethod: method{Algorithm: "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"}},
		SignatureValue: sigValue,
	}

	err := verifyAssertionSignature(raw, sig, []*TrustedCertificate{trusted})
	require.Error(t, err)
}

func TestVerifyAssertionSignatureRejectsUnsigned(t *testing.T) {
	_, trusted := generateTestCert(t)
	err := verifyAssertionSignature([]byte("<Response/>"), nil, []*TrustedCertificate{trusted})
	require.Error(t, err)
}
