package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcrib/config"
	"toolcrib/internal/credentials"
	"toolcrib/internal/logs"
	"toolcrib/internal/models"
)

func testConfig(driver, dsn string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.HTTPPort = "0"
	cfg.Database.Driver = driver
	cfg.Database.DSN = dsn
	cfg.Session.Duration = time.Hour
	cfg.Session.SweepInterval = 10 * time.Millisecond
	cfg.Locks.Timeout = time.Second
	return cfg
}

func TestInitialize(t *testing.T) {
	logs.Silence()
	for _, tc := range []struct{ driver, dsn string }{
		{"", ""},
		{"sqlite", ":memory:"},
	} {
		t.Run("driver="+tc.driver, func(t *testing.T) {
			a := &App{}
			require.NoError(t, a.Initialize(testConfig(tc.driver, tc.dsn)))
			t.Cleanup(func() { _ = a.Close() })

			ctx := context.Background()
			hash, err := credentials.HashWith("pw", credentials.Params{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
			require.NoError(t, err)
			require.NoError(t, a.Backend.Users.CreateUser(ctx, &models.User{Username: "off", PasswordHash: hash, Role: models.RoleOfficer}))

			srv := httptest.NewServer(a.Router)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/readyz")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			body := `{"username":"off","password":"pw"}`
			resp, err = http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

			resp, err = http.Post(srv.URL+"/api/auth/login", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	logs.Silence()
	a := &App{}
	require.NoError(t, a.Initialize(testConfig("", "")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_NotInitialized(t *testing.T) {
	assert.Error(t, (&App{}).Run(context.Background()))
}
