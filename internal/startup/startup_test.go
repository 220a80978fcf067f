package startup

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Equal(t, GoVersion, info.GoVersion)
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.HandleFunc("/healthz", noop).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/stats", noop).Methods(http.MethodGet).Name("stats")
	r.Handle("/metrics", http.HandlerFunc(noop))

	routes, err := GetRoutes(r)
	require.NoError(t, err)
	assert.ElementsMatch(t, []RouteInfo{
		{Method: http.MethodGet, Path: "/healthz"},
		{Method: http.MethodHead, Path: "/healthz"},
		{Method: http.MethodGet, Path: "/api/stats", Name: "stats"},
		{Method: "*", Path: "/metrics"},
	}, routes)
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "root"},
		{"/healthz", "healthz"},
		{"/api/stats", "api/stats"},
		{"/api/images/{id}", "api/images"},
		{"/api", "api"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, getRouteGroup(tt.path))
		})
	}
}

func TestEnsureDirectory(t *testing.T) {
	dir := t.TempDir()

	created := dir + "/a/b"
	require.NoError(t, ensureDirectory(created, "test"))
	assert.DirExists(t, created)

	require.NoError(t, ensureDirectory(created, "test"), "existing directory is fine")

	file := dir + "/file"
	require.NoError(t, writeFile(file, "x"))
	assert.Error(t, ensureDirectory(file, "test"))
}

func TestTestWriteAccess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, testWriteAccess(dir))
	assert.NoFileExists(t, dir+"/.write-test")

	assert.Error(t, testWriteAccess(dir+"/missing"))
}

func TestEnabledString(t *testing.T) {
	assert.Equal(t, "ENABLED", enabledString(true))
	assert.Equal(t, "DISABLED", enabledString(false))
}
