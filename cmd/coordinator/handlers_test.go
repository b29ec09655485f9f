package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/torua-master/internal/catalog"
	"github.com/dreamware/torua-master/internal/cluster"
	"github.com/dreamware/torua-master/internal/config"
	"github.com/dreamware/torua-master/internal/metrics"
	"github.com/dreamware/torua-master/internal/scanner"
)

func testServer(t *testing.T, opts ...func(*config.Config)) *server {
	t.Helper()
	cfg := config.Default()
	cfg.Coordinator.Listen = "127.0.0.1:0"
	cfg.Coordinator.DataDir = t.TempDir()
	for _, opt := range opts {
		opt(cfg)
	}
	registry := prometheus.NewRegistry()
	metrics.InitMetrics(registry)
	return newServer(cfg, registry)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func registerBody(t *testing.T, node cluster.NodeInfo, regions ...string) string {
	t.Helper()
	data, err := json.Marshal(cluster.RegisterRequest{Node: node, Regions: regions})
	require.NoError(t, err)
	return string(data)
}

// TestHandleRegister covers validation and the registry side effects of registration.
func TestHandleRegister(t *testing.T) {
	node := cluster.NodeInfo{ID: "node-1", Addr: "http://127.0.0.1:8081", StartCode: "sc-1"}

	tests := []struct {
		name     string
		method   string
		body     string
		wantCode int
		wantRoot bool
	}{
		{name: "valid with root", method: http.MethodPost, body: registerBody(t, node, catalog.RootRegionName), wantCode: http.StatusNoContent, wantRoot: true},
		{name: "valid without regions", method: http.MethodPost, body: registerBody(t, node), wantCode: http.StatusNoContent},
		{name: "bad json", method: http.MethodPost, body: "{", wantCode: http.StatusBadRequest},
		{name: "missing addr", method: http.MethodPost, body: `{"node":{"id":"x"}}`, wantCode: http.StatusBadRequest},
		{name: "empty region", method: http.MethodPost, body: registerBody(t, node, " "), wantCode: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t)
			rec := do(t, srv.routes(), tt.method, "/register", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantRoot, srv.master.RootLocation() != nil)
		})
	}
}

// TestHandleRegisterRefreshAfterServerDied verifies a live server that was
// declared dead gets its regions back on its next registration refresh.
func TestHandleRegisterRefreshAfterServerDied(t *testing.T) {
	srv := testServer(t)
	h := srv.routes()
	node := cluster.NodeInfo{ID: "node-1", Addr: "http://127.0.0.1:8081", StartCode: "sc-1"}
	body := registerBody(t, node, catalog.RootRegionName)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/register", body).Code)
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/register", body).Code, "refresh")
	require.NotNil(t, srv.master.RootLocation())

	srv.master.ServerDied(node)
	require.Nil(t, srv.master.RootLocation())

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/register", body).Code)
	require.NotNil(t, srv.master.RootLocation())
	assert.Equal(t, node.Location(), *srv.master.RootLocation())
	assert.Equal(t, []cluster.NodeInfo{node}, srv.master.Nodes())
}

func TestHandleListNodes(t *testing.T) {
	srv := testServer(t)
	h := srv.routes()
	for _, id := range []string{"node-2", "node-1"} {
		node := cluster.NodeInfo{ID: id, Addr: "http://" + id, StartCode: "sc"}
		require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/register", registerBody(t, node)).Code)
	}

	rec := do(t, h, http.MethodGet, "/nodes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Nodes, 2)
	assert.Equal(t, "node-1", resp.Nodes[0].ID)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/nodes", "").Code)
}

func TestHandleRegionAssign(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		wantCode int
	}{
		{name: "assign root", method: http.MethodPost, body: `{"region":"-ROOT-,,0","node_id":"node-1"}`, wantCode: http.StatusNoContent},
		{name: "unknown node", method: http.MethodPost, body: `{"region":"-ROOT-,,0","node_id":"node-9"}`, wantCode: http.StatusNotFound},
		{name: "empty region", method: http.MethodPost, body: `{"region":"","node_id":"node-1"}`, wantCode: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPost, body: `[`, wantCode: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t)
			require.NoError(t, srv.master.RegisterNode(cluster.NodeInfo{ID: "node-1", Addr: "http://n1", StartCode: "a"}, nil))
			rec := do(t, srv.routes(), tt.method, "/regions/assign", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleRegions(t *testing.T) {
	srv := testServer(t)
	node := cluster.NodeInfo{ID: "node-1", Addr: "http://n1", StartCode: "a"}
	require.NoError(t, srv.master.RegisterNode(node, []string{catalog.RootRegionName, catalog.FirstMetaRegionName}))

	rec := do(t, srv.routes(), http.MethodGet, "/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Root        *cluster.ServerLocation `json:"root"`
		Assignments []struct {
			Region string `json:"region"`
			NodeID string `json:"node_id"`
		} `json:"assignments"`
		OnlineMeta []string `json:"online_meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Root)
	assert.Equal(t, node.Location(), *resp.Root)
	require.Len(t, resp.Assignments, 2)
	assert.Equal(t, catalog.RootRegionName, resp.Assignments[0].Region)
	assert.Empty(t, resp.OnlineMeta)
}

func TestHandleScanners(t *testing.T) {
	srv := testServer(t)
	rec := do(t, srv.routes(), http.MethodGet, "/scanners", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scanners []scanner.Status `json:"scanners"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Scanners, 2)
	assert.Equal(t, scanner.RootScannerName, resp.Scanners[0].Name)
	assert.Equal(t, scanner.MetaScannerName, resp.Scanners[1].Name)
	assert.Equal(t, "created", resp.Scanners[0].State)
	assert.False(t, resp.Scanners[1].InitialScanComplete)
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(t)
	h := srv.routes()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	srv.master.Shutdown()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/health", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	srv.root.RunOneIteration(canceledContext())

	rec := do(t, srv.routes(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "torua_scanner_initial_scan_complete")
	assert.Contains(t, body, `torua_scanner_scans_total{result="shutdown",scanner="root"}`)
}
