package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/creamsy-pos/internal/config"
	"github.com/fjod/creamsy-pos/internal/publisher"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/signin":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "scoop" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error_description":"Invalid login credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-1","refresh_token":"ref-1","expires_in":3600,"user":{"id":"user-9"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLI()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"pos"}, args...))
	return out.String(), err
}

func TestCLI_SessionLifecycle(t *testing.T) {
	backend := newBackend(t)
	t.Setenv("POS_API_URL", backend.URL)
	t.Setenv("POS_API_KEY", "anon-key")
	t.Setenv("POS_DB_PATH", filepath.Join(t.TempDir(), "pos.db"))
	t.Setenv("POS_LOG_LEVEL", "error")

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session: require_login")

	out, err = runCLI(t, "signin", "--email", "ana@shop.test", "--password", "scoop")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as user-9")

	out, err = runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session: ready")
	assert.Contains(t, out, "user: user-9")

	out, err = runCLI(t, "signout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	out, err = runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session: require_login")
}

func TestCLI_SignInRejected(t *testing.T) {
	backend := newBackend(t)
	t.Setenv("POS_API_URL", backend.URL)
	t.Setenv("POS_API_KEY", "anon-key")
	t.Setenv("POS_DB_PATH", filepath.Join(t.TempDir(), "pos.db"))
	t.Setenv("POS_LOG_LEVEL", "error")

	_, err := runCLI(t, "signin", "--email", "ana@shop.test", "--password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid login credentials")

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "session: require_login")
}

func TestCLI_MissingConfig(t *testing.T) {
	t.Setenv("POS_API_URL", "")
	t.Setenv("POS_API_KEY", "")

	_, err := runCLI(t, "status")
	assert.Error(t, err)
}

func TestNewApp_OptionalBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := newApp(&config.Config{
		APIURL:        "http://127.0.0.1:1",
		APIKey:        "anon-key",
		DBPath:        ":memory:",
		HTTPTimeout:   time.Second,
		RedisAddr:     mr.Addr(),
		KafkaBrokers:  []string{"127.0.0.1:9092"},
		KafkaTopic:    "pos-sales",
		HistoryReload: time.Minute,
		LogLevel:      "error",
	})
	require.NoError(t, err)

	assert.NotNil(t, a.redis)
	assert.IsType(t, &publisher.KafkaPublisher{}, a.publisher)
	assert.NotNil(t, a.handlers().Session)
	assert.NoError(t, a.Close())
}

func TestNewApp_Defaults(t *testing.T) {
	a, err := newApp(&config.Config{
		APIURL:      "http://127.0.0.1:1",
		APIKey:      "anon-key",
		DBPath:      ":memory:",
		HTTPTimeout: time.Second,
		LogLevel:    "error",
	})
	require.NoError(t, err)

	assert.Nil(t, a.redis)
	assert.IsType(t, publisher.Noop{}, a.publisher)
	assert.NoError(t, a.Close())
}

func TestNewApp_LogsCartChanges(t *testing.T) {
	hook := logtest.NewGlobal()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() { log.SetLevel(level) })

	a, err := newApp(&config.Config{
		APIURL:      "http://127.0.0.1:1",
		APIKey:      "anon-key",
		DBPath:      ":memory:",
		HTTPTimeout: time.Second,
		LogLevel:    "debug",
	})
	require.NoError(t, err)

	hook.Reset()
	a.cart.Clear()
	require.NoError(t, a.Close())
	a.cart.Clear()

	var changes []*log.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "cart changed" {
			changes = append(changes, e)
		}
	}
	require.Len(t, changes, 1)
	assert.Equal(t, 0, changes[0].Data["units"])
	assert.Equal(t, "0", changes[0].Data["total"])
}
