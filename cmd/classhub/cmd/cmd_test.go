package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/classhub/cmd/classhub/internal/format"
	"github.com/nfrund/classhub/internal/app"
	"github.com/nfrund/classhub/internal/config"
	"github.com/nfrund/classhub/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestKeyCommand(t *testing.T) {
	out, err := run(t, "key", "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob\n", out)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "classhub v")
}

func TestEventsCommand(t *testing.T) {
	out, err := run(t, "events", "--format", "json", "--module", "presence")
	require.NoError(t, err)

	var events []format.EventDisplay
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	var names []string
	for _, e := range events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"presence.user.offline", "presence.user.online"}, names)

	_, err = run(t, "events", "--format", "yaml", "--module", "")
	assert.Error(t, err)
	eventsOutputFormat = format.Table
}

func TestScheduleCommand_UnknownTarget(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "schedule", "--from", "alice", "--to", "bob", "--text", "See you at 5")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendCommand_RequiresOneDestination(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "send", "--from", "alice", "--text", "hi")
	assert.EqualError(t, err, "exactly one of --to or --group is required")
}

func TestUsersCommand_EmptyDirectory(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "users")
	require.NoError(t, err)
	assert.Contains(t, out, "No users found")
}

func TestMetricsServer(t *testing.T) {
	cfg := config.FromEnv(func(k string) string {
		if k == "STORE_DRIVER" {
			return config.DriverMemory
		}
		return ""
	})
	a := app.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Shutdown(context.Background())

	e, err := newMetricsServer(a)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"scrape", http.MethodGet, "/metrics", http.StatusOK},
		{"wrong method", http.MethodPost, "/metrics", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/debug", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "go_goroutines")
			}
		})
	}
}

func TestServeMetrics_DisabledWithoutAddr(t *testing.T) {
	assert.NoError(t, serveMetrics(context.Background(), nil, ""))
}
