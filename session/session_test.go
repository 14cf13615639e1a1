package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
)

const mockROIGeoJSON = `{"type":"Polygon","coordinates":[[[-45.3,-17.9],[-45.2,-17.9],[-45.2,-17.8],[-45.3,-17.8],[-45.3,-17.9]]]}`

var mockNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func mockSession(t *testing.T) *Session {
	s := New(mockNow)
	region, err := roi.Parse([]byte(mockROIGeoJSON))
	require.NoError(t, err)
	s.SetROI(region)
	s.SelectedDates = []string{"2024-01-05"}
	s.Indices = []model.Index{model.NDVI}
	return s
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())
	return client, mr
}

func TestSession_New(t *testing.T) {
	s := New(mockNow)

	assert.NotEmpty(t, s.ID)
	assert.Nil(t, s.ROI)
	assert.Equal(t, model.DefaultSceneQuery(mockNow), s.Query)
	assert.Empty(t, s.SelectedDates)
	assert.False(t, s.IndexEnabled(model.NDVI))
}

func TestSession_SelectionReset(t *testing.T) {
	s := mockSession(t)
	assert.True(t, s.IndexEnabled(model.NDVI))

	s.SetQuery(s.Query)
	assert.Equal(t, []string{"2024-01-05"}, s.SelectedDates)

	changed := s.Query
	changed.CloudLimit = 30
	s.SetQuery(changed)
	assert.Empty(t, s.SelectedDates)

	s.SelectedDates = []string{"2024-01-05"}
	s.SetROI(s.ROI)
	assert.Empty(t, s.SelectedDates)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	// Mock
	store := NewMemoryStore()
	store.now = func() time.Time { return mockNow }
	s := mockSession(t)

	// Tested code
	err := store.Save(context.Background(), s)
	loaded, getErr := store.Get(context.Background(), s.ID)

	// Asserts
	assert.Nil(t, err)
	assert.Nil(t, getErr)
	assert.Equal(t, s.ROI.Fingerprint(), loaded.ROI.Fingerprint())
	assert.Equal(t, s.SelectedDates, loaded.SelectedDates)
	assert.Equal(t, s.Indices, loaded.Indices)
	assert.True(t, s.Query.Start.Equal(loaded.Query.Start))
	assert.True(t, mockNow.Equal(loaded.LastAccess))

	_, err = store.Get(context.Background(), "missing")
	assert.Equal(t, ErrNotFound, err)
}

func TestMemoryStore_Sweep(t *testing.T) {
	// Mock
	store := NewMemoryStore()
	store.now = func() time.Time { return mockNow }
	old := New(mockNow)
	assert.Nil(t, store.Save(context.Background(), old))
	store.now = func() time.Time { return mockNow.Add(90 * time.Minute) }
	fresh := New(mockNow)
	assert.Nil(t, store.Save(context.Background(), fresh))

	// Tested code
	removed, err := store.Sweep(context.Background(), time.Hour)

	// Asserts
	assert.Nil(t, err)
	assert.Equal(t, 1, removed)
	_, err = store.Get(context.Background(), old.ID)
	assert.Equal(t, ErrNotFound, err)
	_, err = store.Get(context.Background(), fresh.ID)
	assert.Nil(t, err)
}

func TestRedisStore_RoundTripAndExpiry(t *testing.T) {
	// Mock
	client, mr := setupTestRedis(t)
	defer mr.Close()
	store := NewRedisStore(client, time.Hour)
	s := mockSession(t)

	// Tested code
	err := store.Save(context.Background(), s)
	loaded, getErr := store.Get(context.Background(), s.ID)

	// Asserts
	assert.Nil(t, err)
	assert.Nil(t, getErr)
	assert.Equal(t, s.ROI.Fingerprint(), loaded.ROI.Fingerprint())
	assert.Equal(t, time.Hour, mr.TTL(sessionKeyPrefix+s.ID))

	mr.FastForward(61 * time.Minute)
	_, err = store.Get(context.Background(), s.ID)
	assert.Equal(t, ErrNotFound, err)
}

func TestRedisStore_SweepKeysWithoutTTL(t *testing.T) {
	// Mock
	client, mr := setupTestRedis(t)
	defer mr.Close()
	unbounded := NewRedisStore(client, 0)
	stale := New(mockNow)
	assert.Nil(t, unbounded.Save(context.Background(), stale))
	// Save stamps the current time; backdate it
	stale.LastAccess = time.Now().Add(-3 * time.Hour)
	data, _ := json.Marshal(stale)
	mr.Set(sessionKeyPrefix+stale.ID, string(data))
	recent := New(mockNow)
	assert.Nil(t, unbounded.Save(context.Background(), recent))

	// Tested code
	removed, err := NewRedisStore(client, time.Hour).Sweep(context.Background(), time.Hour)

	// Asserts
	assert.Nil(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, mr.Exists(sessionKeyPrefix+stale.ID))
	assert.True(t, mr.Exists(sessionKeyPrefix+recent.ID))
	assert.True(t, mr.TTL(sessionKeyPrefix+recent.ID) > 0)
}

func TestJanitor(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return mockNow }
	assert.Nil(t, store.Save(context.Background(), New(mockNow)))
	store.now = func() time.Time { return mockNow.Add(3 * time.Hour) }

	_, err := NewJanitor(store, time.Hour, "not a schedule")
	assert.NotNil(t, err)

	janitor, err := NewJanitor(store, time.Hour, DefaultSweepSchedule)
	assert.Nil(t, err)
	janitor.Run()
	assert.Empty(t, store.sessions)
}
