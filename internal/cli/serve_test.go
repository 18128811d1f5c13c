package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livedoc/internal/wire"
)

func TestServe_ServesUntilCancelled(t *testing.T) {
	doc := writeDoc(t, "talk.ld", validDoc)
	ready := make(chan string, 1)
	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text"}, Ready: ready}
	cmd := newServeCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{doc, "--addr", "127.0.0.1:0", "--no-watch", "--paused", "--seed", "3"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st wire.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, int64(1), st.Revision)
	assert.False(t, st.Runtime.Running)
	assert.Equal(t, int64(3), st.Runtime.Seed)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_StopsPromptlyWithStreamOpen(t *testing.T) {
	doc := writeDoc(t, "talk.ld", validDoc)
	ready := make(chan string, 1)
	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text"}, Ready: ready}
	cmd := newServeCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{doc, "--addr", "127.0.0.1:0", "--no-watch", "--paused"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second, "shutdown waited on the open stream")
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_MissingDocument(t *testing.T) {
	_, err := execute(t, "serve", "/nonexistent/talk.ld", "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
