// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package docidsender

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/adaptorlib/acl"
	"github.com/tomtom215/adaptorlib/docid"
	"github.com/tomtom215/adaptorlib/internal/feed"
	"github.com/tomtom215/adaptorlib/internal/journal"
)

func newTestSender(t *testing.T, applianceURL string) *Sender {
	t.Helper()
	base, err := url.Parse("https://example.com/doc/")
	require.NoError(t, err)

	return &Sender{
		Datasource: "ds1",
		Codec:      docid.NewCodec(base),
		FeedSender: feed.NewSender(applianceURL, "ds1"),
		Journal:    journal.New(prometheus.NewRegistry()),
		FeedType:   feed.Full,
	}
}

func TestPushRecordsSuccessUpdatesJournal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSender(t, srv.URL)
	id, err := docid.New("doc1")
	require.NoError(t, err)

	failed, err := s.PushRecords(context.Background(), []docid.Record{{ID: id}})
	require.NoError(t, err)
	assert.Nil(t, failed)
	assert.Equal(t, int64(1), s.Journal.Snapshot().SuccessCount)
}

func TestPushRecordsFailureReturnsFirstRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := newTestSender(t, srv.URL)
	first, err := docid.New("first")
	require.NoError(t, err)
	second, err := docid.New("second")
	require.NoError(t, err)

	failed, err := s.PushRecords(context.Background(), []docid.Record{{ID: first}, {ID: second}})
	require.Error(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, first, failed.ID)
}

func TestPushRecordsEmptyBatchIsNoOp(t *testing.T) {
	s := newTestSender(t, "http://unused.invalid")
	failed, err := s.PushRecords(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, failed)
}

func TestPushNamedResourcesUsesCustomErrorHandler(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := newTestSender(t, srv.URL)
	id, err := docid.New("root")
	require.NoError(t, err)

	var handlerCalled bool
	err = s.PushNamedResources(context.Background(), map[docid.ID]acl.ACL{id: {}}, func(err error, attempt int) feed.Decision {
		handlerCalled = true
		return feed.ContinueSkip
	})
	require.NoError(t, err)
	assert.True(t, handlerCalled)
	assert.Equal(t, 1, calls)
}
