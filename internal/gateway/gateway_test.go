package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, h http.Handler, path, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutesStripPrefix(t *testing.T) {
	mirror, chain := upstream(t, "mirror"), upstream(t, "chain")
	h, err := New([]Route{{Prefix: "/api/mirror", Target: mirror.URL}, {Prefix: "/api/chain", Target: chain.URL}}, []string{"*"}, nil)
	require.NoError(t, err)

	rec := get(t, h, "/api/mirror/v1/entities/tournament:1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "mirror /v1/entities/tournament:1", rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/api/chain/tournaments/count", "")
	require.Equal(t, "chain /tournaments/count", rec.Body.String())
}

func TestCORSAllowList(t *testing.T) {
	mirror := upstream(t, "mirror")
	h, err := New([]Route{{Prefix: "/api/mirror", Target: mirror.URL}}, []string{"https://app.example"}, nil)
	require.NoError(t, err)

	rec := get(t, h, "/api/mirror/x", "https://app.example")
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/api/mirror/x", "https://evil.example")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/api/mirror/x", nil)
	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, req)
	require.Equal(t, http.StatusNoContent, pre.Code)
}

func TestUpstreamDownIsBadGateway(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	h, err := New([]Route{{Prefix: "/api/chain", Target: dead.URL}}, nil, nil)
	require.NoError(t, err)

	rec := get(t, h, "/api/chain/execute", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInvalidTarget(t *testing.T) {
	_, err := New([]Route{{Prefix: "/api/x", Target: "not a url"}}, nil, nil)
	require.Error(t, err)
}
