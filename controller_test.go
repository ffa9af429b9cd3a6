// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package adaptorlib

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/adaptorlib/internal/adaptorerr"
	"github.com/tomtom215/adaptorlib/internal/adaptortest"
	"github.com/tomtom215/adaptorlib/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Port:      0,
			Hostname:  "localhost",
			Secure:    false,
			DocIdPath: "/doc/",
		},
		GSA: config.GSAConfig{
			Hostname:   "appliance.example.com",
			Datasource: "adaptorlib-test",
		},
		Adaptor: config.AdaptorConfig{
			FullListingSchedule:  "0 2 * * *",
			FeedRetryMaxAttempts: 5,
		},
		Security: config.SecurityConfig{
			SessionCookieName:  "adaptorlib_session",
			SessionTTL:         30 * time.Minute,
			SessionSweepPeriod: 5 * time.Minute,
		},
	}
}

func TestNewControllerRejectsNilArguments(t *testing.T) {
	_, err := NewController(nil, testConfig(t))
	assert.Error(t, err)

	_, err = NewController(adaptortest.New(), nil)
	assert.Error(t, err)
}

func TestNewControllerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.DocIdPath = ""
	_, err := NewController(adaptortest.New(), cfg)
	assert.Error(t, err)
}

func TestNewControllerWithoutSAMLOrCasbinLeavesThemUnset(t *testing.T) {
	c, err := NewController(adaptortest.New(), testConfig(t))
	require.NoError(t, err)
	assert.Nil(t, c.samlHandler)
	assert.Nil(t, c.enforcer)
}

func TestRouterServesMetrics(t *testing.T) {
	repo := adaptortest.New()
	repo.Put(&adaptortest.Document{
		ID:           "public-doc",
		Content:      []byte("hello"),
		ContentType:  "text/plain",
		LastModified: time.Now(),
	})
	// A document with no ACL rules evaluates to Indeterminate for the
	// anonymous probe, so the document handler would not serve it
	// without a session. This test only checks the /metrics route; ACL
	// semantics are covered by acl_test.go and dochandler_test.go.

	c, err := NewController(repo, testConfig(t))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartStopLifecycleGuards(t *testing.T) {
	c, err := NewController(adaptortest.New(), testConfig(t))
	require.NoError(t, err)

	ctx := context.Background()
	err = c.Stop(ctx, time.Second)
	assert.ErrorIs(t, err, adaptorerr.ErrNotStarted)
}
