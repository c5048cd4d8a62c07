package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, ok, err := ParseRef("vault:secret/vidcat/store#uri")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Ref{Path: "secret/vidcat/store", Key: "uri"}, ref)

	_, ok, err = ParseRef("mongodb://localhost")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"vault:", "vault:secret#uri", "vault:secret/vidcat", "vault:/#"} {
		_, ok, err := ParseRef(bad)
		assert.True(t, ok, bad)
		assert.Error(t, err, bad)
	}
}

func TestSplitMount(t *testing.T) {
	m, r := splitMount("secret/vidcat/store")
	assert.Equal(t, "secret", m)
	assert.Equal(t, "vidcat/store", r)

	m, r = splitMount("secret")
	assert.Equal(t, "secret", m)
	assert.Empty(t, r)
}

func TestLazyPassesPlainValuesThrough(t *testing.T) {
	l := NewLazy(context.Background(), nil)
	got, err := l.Resolve(context.Background(), "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", got)
	assert.Nil(t, l.cli, "no client is built for plain values")
}

func fakeVault(t *testing.T, hits *atomic.Int32) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/vidcat/store" {
			http.Error(w, `{"errors":["permission denied"]}`, http.StatusForbidden)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"uri":"mongodb://app:pw@db:27017","port":27017},` +
			`"metadata":{"created_time":"2024-01-01T00:00:00Z","custom_metadata":null,` +
			`"deletion_time":"","destroyed":false,"version":1}}}`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("VAULT_ADDR", srv.URL)
	t.Setenv("VAULT_TOKEN", "test-token")
}

func TestLazyResolvesAndCaches(t *testing.T) {
	var hits atomic.Int32
	fakeVault(t, &hits)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l := NewLazy(ctx, nil)
	for i := 0; i < 2; i++ {
		got, err := l.Resolve(ctx, "vault:secret/vidcat/store#uri")
		require.NoError(t, err)
		assert.Equal(t, "mongodb://app:pw@db:27017", got)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestGetKVErrors(t *testing.T) {
	var hits atomic.Int32
	fakeVault(t, &hits)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := New(ctx, nil)
	require.NoError(t, err)

	_, err = c.GetKV(ctx, "secret/vidcat/store", "missing", 0)
	assert.ErrorContains(t, err, "not found")

	_, err = c.GetKV(ctx, "secret/vidcat/store", "port", 0)
	assert.ErrorContains(t, err, "not a string")

	_, err = c.GetKV(ctx, "", "uri", 0)
	assert.Error(t, err)
}
