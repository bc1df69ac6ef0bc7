package memory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchConcatenatesSnippets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/memory/search", r.URL.Path)
		w.Write([]byte(`[{"id":"1","memory":"likes go. "},{"id":"2","memory":"drinks tea."}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	got, err := c.Search(context.Background(), "user_1", "preferences")
	require.NoError(t, err)
	assert.Equal(t, "likes go. drinks tea.", got)
}

func TestSearchToleratesNonArrayResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	got, err := c.Search(context.Background(), "user_1", "preferences")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostRetriesOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	_, err := c.Search(context.Background(), "user_1", "query")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	_, err := c.Search(context.Background(), "user_1", "query")
	require.Error(t, err)
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestAddSendsInteraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/memory/add", r.URL.Path)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, zerolog.Nop())
	require.NoError(t, c.Add(context.Background(), "user_1", "question", "answer"))
}
