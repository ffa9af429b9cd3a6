// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package adaptorlib is the embedder-facing contract of the adaptor
// core: implement Adaptor against your repository, hand it to a
// Controller, and the library takes care of the periodic docid feed
// push, on-demand document serving, and SAML authn/authz exchanges
// with the Appliance. Everything under internal/ is mechanism; this
// file and controller.go are the whole of what an embedding program
// needs to import.
package adaptorlib

import (
	"context"
	"io"
	"time"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
)

// Pusher is handed to Adaptor.GetDocIds so the adaptor can push
// batches of DocId records to the Appliance without knowing anything
// about feed composition, retry, or circuit breaking.
type Pusher interface {
	// PushRecords composes and sends batch as one feed, preserving
	// order. On success it returns (nil, nil); on failure it returns
	// the first record of batch that failed to push, so the adaptor
	// can resume GetDocIds from that point on its next scheduled run.
	PushRecords(ctx context.Context, batch []docid.Record) (*docid.Record, error)

	// PushNamedResources pushes ACL-only records that establish
	// inheritance roots independent of any document's own content.
	PushNamedResources(ctx context.Context, resources map[docid.ID]acl.ACL) error
}

// Identity is the principal making a document-content or authorization
// request, as established by session cookie or SAML assertion.
type Identity struct {
	Principal string
	Groups    []string
}

// Request carries everything the document handler knows about an
// inbound content request, to be consulted by GetDocContent.
type Request struct {
	ID        docid.ID
	Identity  *Identity // nil for an anonymous/public probe
	Anonymous bool

	// LastAccess is the client's If-Modified-Since request header, if
	// present and parseable, independent of session or anonymity —
	// GetDocContent may compare it against the document's own
	// last-modified time to decide whether to call
	// Response.RespondNotModified instead of writing a body.
	LastAccess *time.Time
}

// Response is the sink GetDocContent writes a document's content and
// metadata to. Exactly one of the Respond* methods, or a Writer write
// followed by no Respond* call, must happen per request.
type Response interface {
	// SetContentType sets the response content type. Optional; if
	// never called the handler defaults to application/octet-stream.
	SetContentType(string)
	// SetMetadata attaches repository metadata, emitted to the
	// Appliance as X-Gsa-External-Metadata.
	SetMetadata(map[string]string)
	// SetACL attaches this document's ACL, emitted as
	// X-Gsa-Serve-Security plus the usual permit/deny headers.
	SetACL(acl.ACL)
	// SetLastModified records this document's last-modified time, used
	// for future conditional-GET comparisons.
	SetLastModified(t time.Time)

	// Writer returns the io.Writer the adaptor should stream content
	// bytes to. Calling it commits the response headers.
	Writer() io.Writer

	// RespondNotModified tells the handler to emit a 304 with no body,
	// because the adaptor has determined nothing changed since the
	// requester's last access.
	RespondNotModified()
	// RespondNotFound tells the handler to emit a 404: this DocId no
	// longer exists in the repository.
	RespondNotFound()
	// RespondRedirect tells the handler to redirect the requester to an
	// external URL rather than serving content directly.
	RespondRedirect(url string)
}

// Context is passed to Adaptor.Init with everything the adaptor needs
// to read the controller's configuration at startup.
type Context struct {
	DocIdPath     string
	ApplianceHost string
	RawConfig     map[string]any

	// Pusher is the feed pusher the adaptor should retain for the
	// lifetime of the process: GetDocIds receives it again on every
	// call, but an Adaptor implementing IncrementalPoller has no other
	// way to reach it from PollIncremental.
	Pusher Pusher
}

// Decision is the outcome of an authorization check for one DocId.
type Decision int

const (
	Indeterminate Decision = iota
	Permit
	Deny
)

// Adaptor is the single capability interface an embedding repository
// implements. Optional richer behavior (incremental polling, config
// change notification) is detected with the capability interfaces
// below rather than expressed as no-op methods here.
type Adaptor interface {
	// Init is called once before the controller starts serving. An
	// error here is fatal and aborts Controller.Start.
	Init(ctx context.Context, c *Context) error
	// Destroy is called once as the controller shuts down.
	Destroy(ctx context.Context)

	// GetDocIds is called on the configured full-listing schedule and
	// on a manual POST /admin/push; Start does not trigger a run. The
	// adaptor walks its repository and calls pusher.PushRecords for
	// each batch it produces.
	GetDocIds(ctx context.Context, pusher Pusher) error

	// GetDocContent serves one document's content and metadata to resp
	// in response to req, after the document handler has already
	// performed its own authz/conditional-GET checks.
	GetDocContent(ctx context.Context, req *Request, resp Response) error

	// IsUserAuthorized resolves a batch of DocIds to Decisions for one
	// principal in a single call, backing both the document handler's
	// authenticated re-check and the SAML batch authz endpoint.
	IsUserAuthorized(ctx context.Context, identity *Identity, ids []docid.ID) (map[docid.ID]Decision, error)
}

// IncrementalPoller is an optional Adaptor capability: implement it if
// your repository can report "what changed since I was last asked"
// more cheaply than a full GetDocIds walk.
type IncrementalPoller interface {
	PollIncremental(ctx context.Context) error
}

// ConfigChangeListener is an optional Adaptor capability for receiving
// configuration changes. The Controller does not reload configuration
// and never calls OnConfigChange.
type ConfigChangeListener interface {
	OnConfigChange(raw map[string]any)
}

// ResourceStore is an optional Adaptor capability used to resolve
// InheritFrom parent chains during ACL evaluation. Adaptors that never
// use ACL inheritance need not implement it.
type ResourceStore interface {
	acl.Store
}
