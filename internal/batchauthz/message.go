// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package batchauthz

import "encoding/xml"

const actionNamespace = "urn:oasis:names:tc:SAML:1.0:action:ghpp"

// envelope is the inbound SOAP request: one soap:Body wrapping a batch
// of AuthzDecisionQuery elements, grouped under a single Request so
// one round trip covers every resource the Appliance needs a decision
// for.
type envelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    body     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type body struct {
	Request batchRequest `xml:"Request"`
}

// batchRequest is a non-standard but common batching convenience: the
// Appliance wraps multiple AuthzDecisionQuery elements for the same
// Subject under one Request so a single HTTP round trip resolves an
// entire search results page.
type batchRequest struct {
	Subject subject               `xml:"urn:oasis:names:tc:SAML:2.0:assertion Subject"`
	Attrs   []attribute           `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeStatement>Attribute"`
	Queries []authzDecisionQuery  `xml:"AuthzDecisionQuery"`
}

type subject struct {
	NameID string `xml:"urn:oasis:names:tc:SAML:2.0:assertion NameID"`
}

type attribute struct {
	Name   string   `xml:"Name,attr"`
	Values []string `xml:"urn:oasis:names:tc:SAML:2.0:assertion AttributeValue"`
}

func (r batchRequest) groups() []string {
	for _, a := range r.Attrs {
		if a.Name == "memberOf" {
			return a.Values
		}
	}
	return nil
}

type authzDecisionQuery struct {
	Resource string `xml:"Resource,attr"`
}

// authzDecisionStatement is the per-resource answer the response
// envelope carries back, in the same order as the request's queries.
type authzDecisionStatement struct {
	Decision string   `xml:"Decision,attr"`
	Resource string   `xml:"Resource,attr"`
	Actions  []action `xml:"Action"`
}

type action struct {
	Namespace string `xml:"Namespace,attr"`
	Value     string `xml:",chardata"`
}

type responseEnvelope struct {
	XMLName xml.Name     `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    responseBody `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type responseBody struct {
	Statements []authzDecisionStatement `xml:"Response>AuthzDecisionStatement"`
}

func newResponseEnvelope(stmts []authzDecisionStatement) responseEnvelope {
	return responseEnvelope{Body: responseBody{Statements: stmts}}
}
