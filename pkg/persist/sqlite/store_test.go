package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-schemaform/pkg/model"
	"github.com/goliatone/go-schemaform/pkg/persist"
)

func TestStoreGetSet(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "forms.db"))
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.Set("a", "2"))
	require.NoError(t, store.Set("b", "3"))

	value, ok, err := store.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", value)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("a"))
	_, ok, err = store.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Set("schemaform:signup", `{"values":{},"expires":1}`))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	value, ok, err := second.Get("schemaform:signup")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"values":{},"expires":1}`, value)
}

func TestStoreBacksPersistManager(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "forms.db"))
	require.NoError(t, err)
	defer store.Close()

	m, err := persist.New(store, model.PersistConfig{Key: "signup", TTL: model.TTL(time.Hour)})
	require.NoError(t, err)

	m.Schedule(map[string]any{"name": "Ada", "tags": []any{"x", "y"}})
	m.Flush()

	assert.Equal(t, map[string]any{"name": "Ada", "tags": []any{"x", "y"}}, m.Load())

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"schemaform:signup"}, keys)
}
