package storage

import (
	"context"
	"os"
	"testing"

	"github.com/annel0/shopzones/internal/config"
	"github.com/annel0/shopzones/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore общий набор проверок контракта DocumentStore
func exerciseStore(t *testing.T, s DocumentStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "zones:missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, zone.ErrNotFound)

	require.NoError(t, s.Save(ctx, "zones:a", []byte(`{"world":"w"}`)))
	require.NoError(t, s.Save(ctx, "zones:b", []byte("b")))
	require.NoError(t, s.Save(ctx, "backups:a", []byte("snap")))
	require.NoError(t, s.Save(ctx, "zones_x:c", []byte("c")))

	got, err := s.Load(ctx, "zones:a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"world":"w"}`), got)

	require.NoError(t, s.Save(ctx, "zones:b", []byte("b2")))
	got, err = s.Load(ctx, "zones:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b2"), got)

	keys, err := s.Keys(ctx, "zones:")
	require.NoError(t, err)
	assert.Equal(t, []string{"zones:a", "zones:b"}, keys)

	require.NoError(t, s.Delete(ctx, "zones:a"))
	require.NoError(t, s.Delete(ctx, "zones:a"))
	_, err = s.Load(ctx, "zones:a")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err = s.Keys(ctx, "backups:")
	require.NoError(t, err)
	assert.Equal(t, []string{"backups:a"}, keys)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	s := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, s.Save(context.Background(), "k", data))
	data[0] = 'x'
	got, err := s.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStoreClosed(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Load(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, s.Save(context.Background(), "k", nil))
}

func TestBadgerStorePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "zones:z", []byte("doc")))
	require.NoError(t, s.Close())

	s, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(context.Background(), "zones:z")
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), got)
}

func TestFramedStore(t *testing.T) {
	inner := NewMemoryStore()
	f, err := NewFramed(inner)
	require.NoError(t, err)
	defer f.Close()
	exerciseStore(t, f)

	ctx := context.Background()
	payload := []byte(`{"columns":["0,0:C,C,C","0,1:C,C,C","0,2:C,C,C","0,3:C,C,C"]}`)
	require.NoError(t, f.Save(ctx, "market_backups:z", payload))

	raw, err := inner.Load(ctx, "market_backups:z")
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, raw[:4])

	got, err := f.Load(ctx, "market_backups:z")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFramedReadsPlainDocuments(t *testing.T) {
	inner := NewMemoryStore()
	require.NoError(t, inner.Save(context.Background(), "zones:old", []byte(`{"world":"w"}`)))
	f, err := NewFramed(inner)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.Load(context.Background(), "zones:old")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"world":"w"}`), got)
}

func TestOpenBackends(t *testing.T) {
	s, err := Open(config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.StorageConfig{Backend: "badger", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.StorageConfig{Backend: "floppy"})
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.KeyPrefix = "shopzones_test:"
	s, err := NewRedisStore(cfg)
	if err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	defer s.Close()
	cleanup(t, s)
	exerciseStore(t, s)
	cleanup(t, s)
}

func TestMongoStore(t *testing.T) {
	s, err := NewMongoStore(MongoConfig{Database: "shopzones_test"})
	if err != nil {
		t.Skipf("MongoDB not available, skipping test: %v", err)
	}
	defer s.Close()
	cleanup(t, s)
	exerciseStore(t, s)
	cleanup(t, s)
}

func TestMariaStore(t *testing.T) {
	dsn := os.Getenv("ZONES_TEST_MARIA_DSN")
	if dsn == "" {
		t.Skip("ZONES_TEST_MARIA_DSN not set, skipping test")
	}
	s, err := NewMariaStore(dsn)
	if err != nil {
		t.Skipf("MariaDB not available, skipping test: %v", err)
	}
	defer s.Close()
	cleanup(t, s)
	exerciseStore(t, s)
	cleanup(t, s)
}

func cleanup(t *testing.T, s DocumentStore) {
	t.Helper()
	ctx := context.Background()
	for _, prefix := range []string{"zones", "backups:"} {
		keys, err := s.Keys(ctx, prefix)
		require.NoError(t, err)
		for _, k := range keys {
			require.NoError(t, s.Delete(ctx, k))
		}
	}
}

func TestEscapes(t *testing.T) {
	assert.Equal(t, `a\_b\%c\\`, escapeLike(`a_b%c\`))
	assert.Equal(t, `z\*\?\[x\]`, escapeGlob(`z*?[x]`))
}
