package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/broadcast"
	"github.com/roach88/livedoc/internal/scheduler"
	"github.com/roach88/livedoc/internal/server"
	"github.com/roach88/livedoc/internal/session"
	"github.com/roach88/livedoc/internal/testutil"
	"github.com/roach88/livedoc/internal/transform"
)

func TestNewHTTPTransport_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPTransport("ftp://example.com")
	assert.Error(t, err)
	_, err = NewHTTPTransport("http://127.0.0.1:7878/")
	assert.NoError(t, err)
}

func TestHTTPTransport_TimeoutIsDistinct(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	tr, err := NewHTTPTransport(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = tr.Transform(context.Background(), transform.Request{Op: "setText"})
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTransportFailure(err))
	assert.False(t, IsRejected(err))
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr, err := NewHTTPTransport(url)
	require.NoError(t, err)
	_, err = tr.State(context.Background())
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestHTTPTransport_NonSuccessIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error":"not managed","diagnostics":[{"level":"fail","code":"file-not-managed","message":"not managed","file":"","location":""}]}`))
	}))
	t.Cleanup(srv.Close)

	tr, err := NewHTTPTransport(srv.URL)
	require.NoError(t, err)
	_, err = tr.Transform(context.Background(), transform.Request{Op: "setText", File: "/etc/hosts"})

	var re *RejectedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Equal(t, "file-not-managed", re.Result.Diagnostics[0].Code)
	assert.Contains(t, re.Error(), "HTTP 403")
}

const liveFixture = `meta {
  title = "Live";
}

body {
  page intro {
    section s1 {
      paragraph p1 {
        text t1 {
          content = "Hello";
        }
      }
      slot clock {
        generator = @cycle(["a", "b"]);
      }
    }
  }
}
`

// liveServer runs a real session behind the HTTP API.
func liveServer(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.ld")
	require.NoError(t, os.WriteFile(path, []byte(liveFixture), 0o644))

	hub := broadcast.NewHub(broadcast.WithHeartbeat(time.Hour))
	sched := scheduler.New(hub, scheduler.WithClock(testutil.NewFakeClock(time.Time{})))
	sess, err := session.Open(context.Background(), path, sched, hub)
	require.NoError(t, err)

	srv := httptest.NewServer(server.New(sess, sched, hub))
	t.Cleanup(srv.Close)
	return srv.URL, path
}

func TestClient_EndToEnd(t *testing.T) {
	url, path := liveServer(t)
	tr, err := NewHTTPTransport(url)
	require.NoError(t, err)

	c := New(tr, WithFile(path), WithIDs(testutil.NewSequentialIDs("e2e")))
	ctx := context.Background()
	require.NoError(t, c.Resync(ctx))
	assert.Equal(t, int64(1), c.State().DocRev)

	_, err = c.Apply(ctx, EditText{ID: "p1", Text: "Over the wire"})
	require.NoError(t, err)
	st := c.State()
	assert.Equal(t, int64(2), st.DocRev)
	assert.False(t, st.Dirty)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, st.Source, string(data))

	_, err = c.Apply(ctx, Structural{Op: transform.RemoveNode{ID: "ghost"}})
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.Equal(t, int64(2), c.State().DocRev)
}

func TestClient_WatchReceivesDocChanged(t *testing.T) {
	url, path := liveServer(t)
	tr, err := NewHTTPTransport(url)
	require.NoError(t, err)

	watcher := New(tr, WithFile(path))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Resync(ctx))

	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx) }()

	// A second editor commits; the watcher has no local edits and resyncs.
	editor := New(tr, WithFile(path))
	require.NoError(t, editor.Resync(ctx))
	// The subscription may not be live yet, so keep committing until one
	// announcement gets through.
	n := 0
	require.Eventually(t, func() bool {
		n++
		if _, err := editor.Apply(ctx, EditText{ID: "p1", Text: fmt.Sprintf("From elsewhere %d", n)}); err != nil {
			return false
		}
		return watcher.State().DocRev >= 2
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return watcher.State().Source == editor.State().Source
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
