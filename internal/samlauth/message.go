// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package samlauth

import "encoding/xml"

// authnRequest is the minimal SAML 2.0 AuthnRequest the adaptor sends
// to the Appliance's IdP via the HTTP-Redirect binding.
type authnRequest struct {
	XMLName                     xml.Name `xml:"urn:oasis:names:tc:SAML:2.0:protocol AuthnRequest"`
	ID                          string   `xml:"ID,attr"`
	Version                     string   `xml:"Version,attr"`
	IssueInstant                string   `xml:"IssueInstant,attr"`
	Destination                 string   `xml:"Destination,attr"`
	AssertionConsumerServiceURL string   `xml:"AssertionConsumerServiceURL,attr"`
	ProtocolBinding             string   `xml:"ProtocolBinding,attr"`
	Issuer                      string   `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
}

// response is the SAML 2.0 Response the Appliance's IdP posts back to
// the assertion consumer endpoint. Only the fields the adaptor needs
// to establish a session are modeled; everything else round-trips as
// raw bytes for signature verification.
type response struct {
	XMLName      xml.Name  `xml:"urn:oasis:names:tc:SAML:2.0:protocol Response"`
	ID           string    `xml:"ID,attr"`
	InResponseTo string    `xml:"InResponseTo,attr"`
	IssueInstant string    `xml:"IssueInstant,attr"`
	Destination  string    `xml:"Destination,attr"`
	Issuer       string    `xml:"urn:oasis:names:tc:SAML:2.0:assertion Issuer"`
	Status       status    `xml:"urn:oasis:names:tc:SAML:2.0:protocol Status"`
	Assertion    assertion `xml:"urn:oasis:names:tc:SAML:2.0:assertion Assertion"`
}

type status struct {
	StatusCode statusCode `xml:"urn:oasis:names:tc:SAML:2.0:protocol StatusCode"`
}

type statusCode struct {
	Value string `xml:"Value,attr"`
}

const statusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

type assertion struct {
	ID                 string             `xml:"ID,attr"`
	Signature          *signature         `xml:"http://www.w3.org/2000/09/xmldsig# Signature"`
	Subject            subject            `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Conditions         conditions         `xml:"urn:oasis:names:tc:SAML:2.0:assertion Conditions"`
	AttributeStatement attributeStatement `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeStatement"`
}

type subject struct {
	NameID string `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
}

type conditions struct {
	NotBefore    string `xml:"NotBefore,attr"`
	NotOnOrAfter string `xml:"NotOnOrAfter,attr"`
}

type attributeStatement struct {
	Attributes []attribute `xml:"urn:oasis:names:tc:SAML:2.0:assertion Attribute"`
}

type attribute struct {
	Name   string   `xml:"Name,attr"`
	Values []string `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeValue"`
}

// groupsAttribute is the well-known attribute name the Appliance uses
// to carry group membership in the assertion.
const groupsAttribute = "memberOf"

func (a assertion) groups() []string {
	for _, attr := range a.AttributeStatement.Attributes {
		if attr.Name == groupsAttribute {
			return attr.Values
		}
	}
	return nil
}

type signature struct {
	SignedInfo     signedInfo `xml:"http://www.w3.org/2000/09/xmldsig# SignedInfo"`
	SignatureValue string     `xml:"http://www.w3.org/2000/09/xmldsig# SignatureValue"`
	KeyInfo        keyInfo    `xml:"http://www.w3.org/2000/09/xmldsig# KeyInfo"`
}

type signedInfo struct {
	SignatureMethod method    `xml:"http://www.w3.org/2000/09/xmldsig# SignatureMethod"`
	Reference       reference `xml:"http://www.w3.org/2000/09/xmldsig# Reference"`
}

type reference struct {
	DigestValue string `xml:"http://www.w3.org/2000/09/xmldsig# DigestValue"`
}

type method struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type keyInfo struct {
	X509Data x509Data `xml:"http://www.w3.org/2000/09/xmldsig# X509Data"`
}

type x509Data struct {
	X509Certificate string `xml:"http://www.w3.org/2000/09/xmldsig# X509Certificate"`
}
