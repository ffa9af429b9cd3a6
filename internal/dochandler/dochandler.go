// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package dochandler implements the on-demand document content
// endpoint: decode the DocId from the request path, run the
// anonymous/authenticated authorization checks, honor conditional-GET,
// and invoke the embedding Adaptor to produce a body.
package dochandler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
	"github.com/tomtom215/adaptorlib/internal/logging"
	"github.com/tomtom215/adaptorlib/internal/session"
)

// Adaptor is the subset of the root Adaptor interface the document
// handler calls. Declared locally (rather than imported) to avoid a
// dependency cycle between this package and the module root.
type Adaptor interface {
	GetDocContent(ctx context.Context, req *ContentRequest, resp Response) error
	IsUserAuthorized(ctx context.Context, principal string, groups []string, ids []docid.ID) (map[docid.ID]acl.Decision, error)
}

// ContentRequest mirrors the module root's Request type; the document
// handler populates it from path/session state before calling the
// adaptor.
type ContentRequest struct {
	ID         docid.ID
	Principal  string
	Groups     []string
	Anonymous  bool
	LastAccess *time.Time
}

// Response is the module root's Response interface, restated locally
// for the same reason as Adaptor above.
type Response interface {
	SetContentType(string)
	SetMetadata(map[string]string)
	SetACL(acl.ACL)
	SetLastModified(time.Time)
	Writer() io.Writer
	RespondNotModified()
	RespondNotFound()
	RespondRedirect(url string)
}

// Handler serves <basePath>/{docid} content requests.
type Handler struct {
	Adaptor       Adaptor
	Codec         *docid.Codec
	Sessions      *session.Manager
	CookieName    string
	CookieSecure  bool
	ApplianceIPs  []net.IP
	Logger        *zerolog.Logger

	// OnAuthenticationRequired, if set, is called instead of a plain 401
	// when an anonymous request is denied, so a caller with a SAML
	// handler configured can redirect the browser to the IdP rather than
	// dead-ending the request.
	OnAuthenticationRequired func(w http.ResponseWriter, r *http.Request)
}

func (h *Handler) log() zerolog.Logger {
	if h.Logger != nil {
		return *h.Logger
	}
	return logging.Logger()
}

// Route mounts the handler at pattern (e.g. "/doc/*") on r.
func (h *Handler) Route(r chi.Router, pattern string) {
	r.Get(pattern, h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.applianceAllowed(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id, err := h.decodeID(r)
	if err != nil {
		h.log().Warn().Err(err).Str("path", r.URL.Path).Msg("malformed docid in request path")
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	sess, anon := h.currentSession(r)

	// Anonymous probe first: many documents are public, and avoiding a
	// round trip to the Appliance's IdP for every public document is
	// the whole point of checking before requiring a session.
	if anon {
		decision, err := h.authorize(ctx, "", nil, id)
		if err != nil {
			h.log().Err(err).Msg("anonymous authorization check failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if decision == acl.Permit {
			h.serve(w, r, id, nil, true)
			return
		}
		// Not permitted anonymously: the caller must authenticate.
		if h.OnAuthenticationRequired != nil {
			h.OnAuthenticationRequired(w, r)
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	decision, err := h.authorize(ctx, sess.Principal, sess.Groups, id)
	if err != nil {
		h.log().Err(err).Msg("authenticated authorization check failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if decision != acl.Permit {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	h.serve(w, r, id, sess, false)
}

func (h *Handler) decodeID(r *http.Request) (docid.ID, error) {
	suffix := chi.URLParam(r, "*")
	return h.Codec.DecodePathSuffix(suffix)
}

func (h *Handler) currentSession(r *http.Request) (*session.Session, bool) {
	cookie, err := r.Cookie(h.CookieName)
	if err != nil {
		return nil, true
	}
	sess, err := h.Sessions.Get(cookie.Value)
	if err != nil {
		return nil, true
	}
	return sess, false
}

func (h *Handler) authorize(ctx context.Context, principal string, groups []string, id docid.ID) (acl.Decision, error) {
	result, err := h.Adaptor.IsUserAuthorized(ctx, principal, groups, []docid.ID{id})
	if err != nil {
		return acl.Indeterminate, fmt.Errorf("dochandler: authorize: %w", err)
	}
	d, ok := result[id]
	if !ok {
		return acl.Indeterminate, nil
	}
	return d, nil
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, id docid.ID, sess *session.Session, anonymous bool) {
	req := &ContentRequest{ID: id, Anonymous: anonymous, LastAccess: ifModifiedSince(r)}
	if sess != nil {
		req.Principal = sess.Principal
		req.Groups = sess.Groups
	}

	resp := &responseWriter{w: w, r: r}
	err := h.Adaptor.GetDocContent(r.Context(), req, resp)

	if err != nil {
		h.log().Err(err).Str("docid", id.String()).Msg("adaptor failed to serve document content")
		if !resp.headersSent {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if !resp.headersSent {
		// Adaptor returned nil without calling any Respond* method or
		// writing a body: treat as an empty 200, matching the
		// conservative default of "no error means success".
		resp.commit(http.StatusOK)
	}
}

// ifModifiedSince parses the client's If-Modified-Since request header,
// per RFC 7232 §3.3. A missing or unparseable header means no
// conditional-GET basis is available, independent of session state.
func ifModifiedSince(r *http.Request) *time.Time {
	v := r.Header.Get("If-Modified-Since")
	if v == "" {
		return nil
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handler) applianceAllowed(r *http.Request) bool {
	if len(h.ApplianceIPs) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	remote := net.ParseIP(host)
	if remote == nil {
		return false
	}
	for _, allowed := range h.ApplianceIPs {
		if allowed.Equal(remote) {
			return true
		}
	}
	return false
}

// responseWriter adapts http.ResponseWriter to the Response interface.
type responseWriter struct {
	w http.ResponseWriter
	r *http.Request

	contentType string
	metadata    map[string]string
	docACL      *acl.ACL
	lastMod     *time.Time

	headersSent bool
	terminal    bool // true once a Respond* call has fully handled the response
}

func (r *responseWriter) SetContentType(ct string)        { r.contentType = ct }
func (r *responseWriter) SetMetadata(m map[string]string) { r.metadata = m }
func (r *responseWriter) SetACL(a acl.ACL)                { r.docACL = &a }
func (r *responseWriter) SetLastModified(t time.Time)     { r.lastMod = &t }

func (r *responseWriter) Writer() io.Writer {
	if !r.headersSent {
		r.commit(http.StatusOK)
	}
	return r.w
}

func (r *responseWriter) commit(status int) {
	if r.headersSent {
		return
	}
	r.headersSent = true

	if r.contentType != "" {
		r.w.Header().Set("Content-Type", r.contentType)
	}
	if r.metadata != nil {
		r.w.Header().Set("X-Gsa-External-Metadata", encodeMetadataHeader(r.metadata))
	}
	if r.docACL != nil {
		r.w.Header().Set("X-Gsa-Serve-Security", serveSecurityHeader(*r.docACL))
	}
	if r.lastMod != nil {
		r.w.Header().Set("Last-Modified", r.lastMod.UTC().Format(http.TimeFormat))
	}
	r.w.WriteHeader(status)
}

func (r *responseWriter) RespondNotModified() {
	r.terminal = true
	r.commit(http.StatusNotModified)
}

func (r *responseWriter) RespondNotFound() {
	r.terminal = true
	r.commit(http.StatusNotFound)
}

func (r *responseWriter) RespondRedirect(target string) {
	r.terminal = true
	if !r.headersSent {
		r.headersSent = true
		http.Redirect(r.w, r.r, target, http.StatusFound)
	}
}

func encodeMetadataHeader(m map[string]string) string {
	var out string
	first := true
	for k, v := range m {
		if !first {
			out += ","
		}
		first = false
		out += url.QueryEscape(k) + "=" + url.QueryEscape(v)
	}
	return out
}

func serveSecurityHeader(a acl.ACL) string {
	if len(a.PermitUsers) == 0 && len(a.PermitGroups) == 0 && len(a.DenyUsers) == 0 && len(a.DenyGroups) == 0 {
		return "public"
	}
	return "secure"
}
