package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_ServesAndShutsDown(t *testing.T) {
	db := testDB(t)
	t.Setenv("CROPROT_DATABASE", db)

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Ready:       func(addr string) { ready <- addr },
	}
	cmd := newServeCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--addr", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var base string
	select {
	case addr := <-ready:
		base = "http://" + addr
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post(base+"/fields/north/harvests", "application/json", strings.NewReader(`{"crop":"wheat"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/fields/north/sowing-checks", "application/json", strings.NewReader(`{"crop":"chickpea"}`))
	require.NoError(t, err)
	var check struct {
		Allowed bool   `json:"allowed"`
		Rule    string `json:"rule"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&check))
	resp.Body.Close()
	assert.False(t, check.Allowed)
	assert.Equal(t, "bootstrap_cereal", check.Rule)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "croprot_sowing_checks_total")
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}

	// The harvest went to the configured database.
	out := mustExecute(t, "history", "north", "--db", db)
	assert.Contains(t, out, "PreviousCrop1=wheat")
}

func TestServe_ListenError(t *testing.T) {
	t.Setenv("CROPROT_DATABASE", testDB(t))

	stdout, _, err := execute(t, nil, "serve", "--addr", "256.0.0.1:bad")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "failed to listen")
}
