// adaptorlib - Enterprise Search Appliance adaptor core
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetSameCookie(t *testing.T) {
	m := New(time.Hour, time.Millisecond)
	s, err := m.Create()
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestGetTouchesLastAccessMonotonically(t *testing.T) {
	m := New(time.Hour, time.Millisecond)
	s, err := m.Create()
	require.NoError(t, err)

	first := s.LastAccess
	time.Sleep(2 * time.Millisecond)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.True(t, got.LastAccess.After(first))
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	m := New(time.Hour, time.Millisecond)
	_, err := m.Get("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredSessionNotFound(t *testing.T) {
	m := New(time.Millisecond, time.Millisecond)
	s, err := m.Create()
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesSession(t *testing.T) {
	m := New(time.Hour, time.Millisecond)
	s, err := m.Create()
	require.NoError(t, err)

	m.Delete(s.ID)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupExpiredSweepsAllShards(t *testing.T) {
	m := New(time.Millisecond, 0)
	for i := 0; i < 50; i++ {
		_, err := m.Create()
		require.NoError(t, err)
	}

	time.Sleep(5 * time.Millisecond)
	removed := m.CleanupExpired()
	assert.Equal(t, 50, removed)
}

func TestCleanupExpiredThrottled(t *testing.T) {
	m := New(time.Millisecond, time.Hour)
	_, err := m.Create()
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	first := m.CleanupExpired()
	second := m.CleanupExpired()

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second, "second call within min interval should be a no-op")
}

func TestSessionSlotStore(t *testing.T) {
	m := New(time.Hour, time.Millisecond)
	s, err := m.Create()
	require.NoError(t, err)

	s.Put("samlauth.inResponseTo", "abc123")
	v, ok := s.Get("samlauth.inResponseTo")
	require.True(t, ok)
	assert.Equal(t, "abc123", v)

	s.Delete("samlauth.inResponseTo")
	_, ok = s.Get("samlauth.inResponseTo")
	assert.False(t, ok)
}

func TestUniqueIDsAcrossCreates(t *testing.T) {
	m := New(time.Hour, time.Millisecond)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		s, err := m.Create()
		require.NoError(t, err)
		assert.False(t, seen[s.ID], "session id collision")
		seen[s.ID] = true
	}
}
