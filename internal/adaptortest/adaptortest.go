// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

// Package adaptortest is a small in-memory Adaptor implementation: not
// a mock, a real (if trivial) repository, so the test suite and the
// example cmd/adaptorserver program have something concrete to exercise
// the controller against without standing up an actual document store.
package adaptortest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/adaptorlib"
	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
)

// Document is one entry of the in-memory repository.
type Document struct {
	ID           docid.ID
	Content      []byte
	ContentType  string
	ACL          acl.ACL
	LastModified time.Time
}

// Adaptor is a repository held entirely in memory, guarded by a single
// mutex — grounded on the teacher's own in-memory store shape (map +
// sync.RWMutex, no sharding, since this is test/example scale rather
// than the production scale internal/session strives for). It
// implements adaptorlib.Adaptor, adaptorlib.ResourceStore, and
// adaptorlib.IncrementalPoller.
type Adaptor struct {
	mu      sync.RWMutex
	docs    map[docid.ID]*Document
	pusher  adaptorlib.Pusher
	polled  int
	changed map[docid.ID]struct{}
}

// New returns an empty repository.
func New() *Adaptor {
	return &Adaptor{
		docs:    make(map[docid.ID]*Document),
		changed: make(map[docid.ID]struct{}),
	}
}

// Put inserts or replaces a document and marks it for the next
// incremental poll, for callers seeding fixtures or a cmd/ program
// accepting writes from elsewhere.
func (a *Adaptor) Put(doc *Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[doc.ID] = doc
	a.changed[doc.ID] = struct{}{}
}

// Delete removes a document.
func (a *Adaptor) Delete(id docid.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.docs, id)
	a.changed[id] = struct{}{}
}

// Init retains the Pusher for later use by PollIncremental; the
// in-memory map needs no other startup work.
func (a *Adaptor) Init(ctx context.Context, c *adaptorlib.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pusher = c.Pusher
	return nil
}

// Destroy has nothing repository-specific to release.
func (a *Adaptor) Destroy(ctx context.Context) {}

// GetDocIds walks the whole in-memory map and pushes it as one batch.
// A real adaptor would paginate; this one exists to exercise the push
// path end to end, not to demonstrate pagination.
func (a *Adaptor) GetDocIds(ctx context.Context, pusher adaptorlib.Pusher) error {
	a.mu.RLock()
	batch := make([]docid.Record, 0, len(a.docs))
	for id, doc := range a.docs {
		lm := doc.LastModified
		batch = append(batch, docid.Record{ID: id, LastModified: &lm})
	}
	a.mu.RUnlock()

	if len(batch) == 0 {
		return nil
	}
	if failed, err := pusher.PushRecords(ctx, batch); err != nil {
		return fmt.Errorf("adaptortest: push failed at %v: %w", failed, err)
	}
	return nil
}

// PollIncremental pushes only the documents touched by Put/Delete since
// the last poll, demonstrating the adaptorlib.IncrementalPoller
// capability.
func (a *Adaptor) PollIncremental(ctx context.Context) error {
	a.mu.Lock()
	if len(a.changed) == 0 {
		a.mu.Unlock()
		return nil
	}
	batch := make([]docid.Record, 0, len(a.changed))
	for id := range a.changed {
		if doc, ok := a.docs[id]; ok {
			lm := doc.LastModified
			batch = append(batch, docid.Record{ID: id, LastModified: &lm})
		} else {
			batch = append(batch, docid.Record{ID: id, Delete: true})
		}
	}
	a.changed = make(map[docid.ID]struct{})
	pusher := a.pusher
	a.polled++
	a.mu.Unlock()

	if pusher == nil {
		return nil
	}
	_, err := pusher.PushRecords(ctx, batch)
	return err
}

// GetDocContent serves one document's bytes, honoring conditional-GET
// against req.LastAccess the same way a real repository would compare
// against its own modification clock.
func (a *Adaptor) GetDocContent(ctx context.Context, req *adaptorlib.Request, resp adaptorlib.Response) error {
	a.mu.RLock()
	doc, ok := a.docs[req.ID]
	a.mu.RUnlock()
	if !ok {
		resp.RespondNotFound()
		return nil
	}

	if req.LastAccess != nil && !doc.LastModified.After(*req.LastAccess) {
		resp.RespondNotModified()
		return nil
	}

	resp.SetContentType(doc.ContentType)
	resp.SetACL(doc.ACL)
	resp.SetLastModified(doc.LastModified)
	_, err := resp.Writer().Write(doc.Content)
	return err
}

// IsUserAuthorized evaluates each requested DocId's ACL against
// identity via internal/acl, resolving InheritFrom chains against this
// same repository. A nil identity is the anonymous probe.
func (a *Adaptor) IsUserAuthorized(ctx context.Context, identity *adaptorlib.Identity, ids []docid.ID) (map[docid.ID]adaptorlib.Decision, error) {
	var principal string
	var groups []string
	if identity != nil {
		principal = identity.Principal
		groups = identity.Groups
	}

	out := make(map[docid.ID]adaptorlib.Decision, len(ids))
	for _, id := range ids {
		a.mu.RLock()
		doc, ok := a.docs[id]
		a.mu.RUnlock()
		if !ok {
			out[id] = adaptorlib.Indeterminate
			continue
		}
		decision, err := acl.Evaluate(ctx, a, doc.ACL, principal, groups)
		if err != nil {
			return nil, fmt.Errorf("adaptortest: evaluate %q: %w", id, err)
		}
		out[id] = adaptorlib.Decision(decision)
	}
	return out, nil
}

// ACL implements acl.Store (and so adaptorlib.ResourceStore), letting
// Evaluate resolve InheritFrom parents against this same in-memory map.
func (a *Adaptor) ACL(ctx context.Context, id docid.ID) (acl.ACL, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	doc, ok := a.docs[id]
	if !ok {
		return acl.ACL{}, false, nil
	}
	return doc.ACL, true, nil
}
