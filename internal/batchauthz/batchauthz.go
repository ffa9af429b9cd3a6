// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package batchauthz implements the SAML batch authorization endpoint:
// the Appliance posts a SOAP envelope carrying one AuthzDecisionQuery
// per resource it needs a decision for (e.g. building a search result
// page), and expects one AuthzDecisionStatement back per query,
// in the same order, without a round trip per document.
package batchauthz

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
	"github.com/tomtom215/adaptorlib/internal/logging"
)

// Authorizer is the subset of the root Adaptor interface this handler
// calls. Declared locally for the same import-cycle reason as
// internal/dochandler.Adaptor.
type Authorizer interface {
	IsUserAuthorized(ctx context.Context, principal string, groups []string, ids []docid.ID) (map[docid.ID]acl.Decision, error)
}

// Handler serves /saml-authz.
type Handler struct {
	Authorizer Authorizer
	Codec      *docid.Codec
	Logger     *zerolog.Logger

	// RequireClientCert, when true, rejects any request that did not
	// present a verified TLS client certificate. The listener is
	// configured with tls.RequestClientCert (wanted, not required) so
	// that this check — rather than the listener itself — is the
	// enforcement point, letting the requirement be toggled without a
	// listener restart.
	RequireClientCert bool
}

func (h *Handler) log() zerolog.Logger {
	if h.Logger != nil {
		return *h.Logger
	}
	return logging.Logger()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.RequireClientCert && (r.TLS == nil || len(r.TLS.PeerCertificates) == 0) {
		http.Error(w, "client certificate required", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		h.log().Warn().Err(err).Msg("batchauthz: malformed SOAP envelope")
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	principal := env.Body.Request.Subject.NameID
	groups := env.Body.Request.groups()

	queries := env.Body.Request.Queries
	ids := make([]docid.ID, 0, len(queries))
	idByIndex := make([]docid.ID, len(queries))
	okByIndex := make([]bool, len(queries))
	for i, q := range queries {
		resourceURL, err := url.Parse(q.Resource)
		if err != nil {
			continue
		}
		id, err := h.Codec.Decode(resourceURL)
		if err != nil {
			continue
		}
		idByIndex[i] = id
		okByIndex[i] = true
		ids = append(ids, id)
	}

	var decisions map[docid.ID]acl.Decision
	if len(ids) > 0 {
		decisions, err = h.Authorizer.IsUserAuthorized(r.Context(), principal, groups, ids)
		if err != nil {
			h.log().Err(err).Msg("batchauthz: authorization check failed, answering Indeterminate")
			decisions = nil
		}
	}

	stmts := make([]authzDecisionStatement, len(queries))
	for i, q := range queries {
		d := acl.Indeterminate
		if okByIndex[i] {
			if got, ok := decisions[idByIndex[i]]; ok {
				d = got
			}
		}
		stmts[i] = authzDecisionStatement{
			Decision: decisionString(d),
			Resource: q.Resource,
			Actions:  []action{{Namespace: actionNamespace, Value: "GET"}},
		}
	}

	respEnv := newResponseEnvelope(stmts)
	out, err := xml.MarshalIndent(respEnv, "", "  ")
	if err != nil {
		h.log().Err(err).Msg("batchauthz: failed to marshal response envelope")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

func decisionString(d acl.Decision) string {
	switch d {
	case acl.Permit:
		return "Permit"
	case acl.Deny:
		return "Deny"
	default:
		return "Indeterminate"
	}
}
