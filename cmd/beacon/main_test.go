package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/beacon/pkg/remoteconfig"
)

// setupHome points HOME at a temp dir so config and device state stay local.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
		assert.NotEmpty(t, c.Short, c.Name())
	}
	for _, want := range []string{"run", "fetch-config", "session", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestFetchConfigCmd(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantConfig bool
		wantItems  int
	}{
		{"items", http.StatusOK, `{"data":[{"id":"a"},{"id":"b"}],"error":null}`, true, 2},
		{"empty", http.StatusOK, `{"data":[],"error":null}`, true, 0},
		{"server error", http.StatusOK, `{"data":null,"error":{"message":"disabled"}}`, false, 0},
		{"not found", http.StatusNotFound, ``, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			out, err := execute(t, "fetch-config", srv.URL)
			require.NoError(t, err)

			var res fetchResult
			require.NoError(t, json.Unmarshal([]byte(out), &res), out)
			assert.Equal(t, srv.URL, res.URL)
			assert.Equal(t, tt.wantConfig, res.Config)
			assert.Len(t, res.Items, tt.wantItems)
		})
	}
}

func TestFetchConfigCmd_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	_, err := execute(t, "fetch-config", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text/html")
}

func TestFetchConfigCmd_RequiresURL(t *testing.T) {
	_, err := execute(t, "fetch-config")
	assert.Error(t, err)
}

func TestSessionCmd(t *testing.T) {
	home := setupHome(t)

	out, err := execute(t, "session")
	require.NoError(t, err)

	var info sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &info), out)
	assert.NotEmpty(t, info.Session.ID)
	assert.Equal(t, "15m0s", info.Session.Timeout)
	assert.Equal(t, "4h0m0s", info.Session.MaxLifetime)

	persisted, err := os.ReadFile(filepath.Join(home, ".config", "beacon", "device_id"))
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(persisted)), info.Device["device.id"])

	out2, err := execute(t, "session")
	require.NoError(t, err)
	var again sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out2[strings.Index(out2, "{"):]), &again))
	assert.NotEqual(t, info.Session.ID, again.Session.ID, "every invocation starts a new session")
	assert.Equal(t, info.Device["device.id"], again.Device["device.id"])
}

func TestSessionCmd_EnvOverride(t *testing.T) {
	setupHome(t)
	t.Setenv("BEACON_SESSION_TIMEOUT", "30s")

	out, err := execute(t, "session")
	require.NoError(t, err)
	var info sessionInfo
	require.NoError(t, json.Unmarshal([]byte(out[strings.Index(out, "{"):]), &info))
	assert.Equal(t, "30s", info.Session.Timeout)
}

func TestRun_InvalidConfig(t *testing.T) {
	setupHome(t)
	t.Setenv("BEACON_SERVER_HTTP_PORT", "70000")

	err := run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRun_ServesRemoteConfig(t *testing.T) {
	setupHome(t)

	configSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":"tap-checkout"}],"error":null}`)
	}))
	defer configSrv.Close()

	port := freePort(t)
	t.Setenv("BEACON_SERVER_ENABLED", "true")
	t.Setenv("BEACON_SERVER_HTTP_PORT", fmt.Sprint(port))
	t.Setenv("BEACON_REMOTE_CONFIG_URL", configSrv.URL)
	t.Setenv("BEACON_LOGGING_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	var snap remoteconfig.Snapshot[json.RawMessage]
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/config")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&snap) == nil
	}, 5*time.Second, 50*time.Millisecond)

	require.Len(t, snap.Items, 1)
	assert.JSONEq(t, `{"id":"tap-checkout"}`, string(snap.Items[0]))
	assert.Equal(t, "http", snap.Source)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `beacon_remote_config_fetches_total{outcome="updated"}`)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
