// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package adaptortest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/adaptorlib"
	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
)

type recordingPusher struct {
	batches [][]docid.Record
}

func (p *recordingPusher) PushRecords(ctx context.Context, batch []docid.Record) (*docid.Record, error) {
	p.batches = append(p.batches, batch)
	return nil, nil
}

func (p *recordingPusher) PushNamedResources(ctx context.Context, resources map[docid.ID]acl.ACL) error {
	return nil
}

func TestGetDocIdsPushesEveryDocument(t *testing.T) {
	a := New()
	a.Put(&Document{ID: "one", LastModified: time.Now()})
	a.Put(&Document{ID: "two", LastModified: time.Now()})

	pusher := &recordingPusher{}
	require.NoError(t, a.GetDocIds(context.Background(), pusher))
	require.Len(t, pusher.batches, 1)
	assert.Len(t, pusher.batches[0], 2)
}

func TestPollIncrementalOnlyPushesChangedDocuments(t *testing.T) {
	a := New()
	a.Put(&Document{ID: "one", LastModified: time.Now()})

	pusher := &recordingPusher{}
	require.NoError(t, a.Init(context.Background(), &adaptorlib.Context{Pusher: pusher}))

	require.NoError(t, a.PollIncremental(context.Background()))
	require.Len(t, pusher.batches, 1)
	assert.Len(t, pusher.batches[0], 1)

	// a second poll with nothing changed pushes nothing
	require.NoError(t, a.PollIncremental(context.Background()))
	assert.Len(t, pusher.batches, 1)

	a.Delete("one")
	require.NoError(t, a.PollIncremental(context.Background()))
	require.Len(t, pusher.batches, 2)
	assert.True(t, pusher.batches[1][0].Delete)
}

func TestIsUserAuthorizedEvaluatesACL(t *testing.T) {
	a := New()
	a.Put(&Document{
		ID:  "secret",
		ACL: acl.ACL{PermitUsers: []string{"alice"}},
	})

	decisions, err := a.IsUserAuthorized(context.Background(), nil, []docid.ID{"secret"})
	require.NoError(t, err)
	assert.Equal(t, 0, int(decisions["secret"])) // Indeterminate for anonymous
}

func TestACLReturnsStoredDescriptor(t *testing.T) {
	a := New()
	a.Put(&Document{ID: "parent", ACL: acl.ACL{PermitUsers: []string{"alice"}}})
	a.Put(&Document{ID: "child", ACL: acl.ACL{InheritFrom: "parent", InheritanceType: acl.ParentDominates}})

	parentACL, ok, err := a.ACL(context.Background(), "child")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, docid.ID("parent"), parentACL.InheritFrom)
}
