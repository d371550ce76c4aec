package server

import (
	"expvar"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/INLOpen/ledgersnap/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMetricsServer_Routes(t *testing.T) {
	expvar.NewInt("server_test_counter").Set(7)

	testCases := []struct {
		name       string
		pprof      bool
		path       string
		wantStatus int
	}{
		{name: "expvar", path: "/debug/vars", wantStatus: http.StatusOK},
		{name: "statsviz", path: "/debug/statsviz/", wantStatus: http.StatusOK},
		{name: "pprof enabled", pprof: true, path: "/debug/pprof/", wantStatus: http.StatusOK},
		{name: "pprof disabled", pprof: false, path: "/debug/pprof/", wantStatus: http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewMetricsServer(&config.DebugConfig{PProfEnabled: tc.pprof}, discardLogger())
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}

	srv := NewMetricsServer(&config.DebugConfig{}, discardLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Contains(t, rec.Body.String(), `"server_test_counter": 7`)
}

func TestMetricsServer_StartStop(t *testing.T) {
	srv := NewMetricsServer(&config.DebugConfig{ListenAddress: "127.0.0.1:0"}, discardLogger())
	addr, err := srv.Start()
	require.NoError(t, err)
	defer srv.Stop()

	again, err := srv.Start()
	require.NoError(t, err)
	assert.Equal(t, addr, again, "starting twice keeps the first listener")

	resp, err := http.Get("http://" + addr + "/debug/vars")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv.Stop()
	srv.Stop()
	_, err = http.Get("http://" + addr + "/debug/vars")
	assert.Error(t, err)
}

func TestNewMetricsServer_DefaultAddress(t *testing.T) {
	srv := NewMetricsServer(&config.DebugConfig{}, discardLogger())
	assert.Equal(t, DefaultListenAddress, srv.server.Addr)
}
