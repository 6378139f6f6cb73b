package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/shopzones/internal/app"
	"github.com/annel0/shopzones/internal/auth"
	"github.com/annel0/shopzones/internal/config"
	"github.com/annel0/shopzones/internal/eventbus"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/storage"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/world"
)

type fixture struct {
	app    *app.App
	world  *world.MemoryWorld
	server *Server
	store  *storage.MemoryStore
}

func newFixture(t *testing.T, tokens *auth.Tokens) *fixture {
	t.Helper()
	w := world.NewMemoryWorld("w", 0, 64)
	for _, p := range []vec.Vec3{{X: 0, Y: 10, Z: 0}, {X: 1, Y: 10, Z: 0}} {
		require.NoError(t, w.SetBlock(p.Add(vec.Vec3{Y: -1}), world.NewBlock(world.WhiteConcrete)))
		require.NoError(t, w.SetBlock(p, world.NewBlock(world.MarkerZone)))
		require.NoError(t, w.SetBlock(p.Add(vec.Vec3{Y: 1}), world.NewBlock(world.Chest)))
	}

	cfg := config.Default()
	cfg.Scan.Radius = 16
	cfg.Scan.Workers = 2
	store := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()

	a, err := app.New(app.Options{
		Config:   cfg,
		Access:   world.NewMemoryAccess(w),
		Store:    store,
		Bus:      eventbus.NewMemoryBus(64),
		Registry: reg,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Close() })

	srv := NewServer(Config{App: a, Tokens: tokens, Registry: reg, Logger: logging.Discard()})
	return &fixture{app: a, world: w, server: srv, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var resp GenericResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func (f *fixture) scan(t *testing.T) {
	t.Helper()
	rec, resp := f.do(t, http.MethodPost, "/api/worlds/w/scan", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, resp.Success)
}

func dataMap(t *testing.T, resp GenericResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data: %#v", resp.Data)
	return m
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestScanAndQueryZones(t *testing.T) {
	f := newFixture(t, nil)

	rec, resp := f.do(t, http.MethodPost, "/api/worlds/w/scan", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, dataMap(t, resp)["zones_created"])
	assert.EqualValues(t, 2, dataMap(t, resp)["markers_found"])

	rec, resp = f.do(t, http.MethodGet, "/api/worlds/w/zones", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)

	rec, resp = f.do(t, http.MethodGet, "/api/zones/zone_w_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	z := dataMap(t, resp)
	assert.Equal(t, "w", z["world"])
	assert.EqualValues(t, 2, z["columns"])
	assert.EqualValues(t, 44, z["blocks"])
	assert.Equal(t, true, z["connected"])
	assert.Len(t, z["anchors"], 2)

	rec, _ = f.do(t, http.MethodGet, "/api/zones/zone_w_9", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocate(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	rec, resp := f.do(t, http.MethodGet, "/api/locate?world=w&x=1.5&y=25.2&z=0.3", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "zone_w_1", dataMap(t, resp)["id"])

	// выше колонны
	rec, _ = f.do(t, http.MethodGet, "/api/locate?world=w&x=1.5&y=31&z=0.3", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/locate?world=w&x=abc&y=1&z=0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/locate?x=1&y=1&z=0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNearby(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	_, resp := f.do(t, http.MethodGet, "/api/nearby?world=w&x=0&y=10&z=0&radius=5", "", "")
	assert.Len(t, resp.Data, 1)
	_, resp = f.do(t, http.MethodGet, "/api/nearby?world=w&x=100&y=10&z=0&radius=5", "", "")
	assert.Empty(t, resp.Data)
	rec, _ := f.do(t, http.MethodGet, "/api/nearby?world=w&x=0&y=10&z=0&radius=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBackupRestoreEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	rec, _ := f.do(t, http.MethodPost, "/api/zones/zone_w_1/restore", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "восстановление без копии")

	rec, resp := f.do(t, http.MethodPost, "/api/zones/zone_w_1/backup?layout=general", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 4, dataMap(t, resp)["blocks_saved"])

	rec, resp = f.do(t, http.MethodGet, "/api/zones/zone_w_1/backup", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := time.Parse(time.RFC3339, dataMap(t, resp)["timestamp"].(string))
	assert.NoError(t, err)

	require.NoError(t, f.world.SetBlock(vec.Vec3{X: 1, Y: 11, Z: 0}, world.NewBlock(world.Stone)))
	rec, resp = f.do(t, http.MethodPost, "/api/zones/zone_w_1/restore", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, dataMap(t, resp)["partial"])
	b, err := f.world.BlockAt(vec.Vec3{X: 1, Y: 11, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, world.Chest, b.Material)

	_, resp = f.do(t, http.MethodGet, "/api/backups", "", "")
	assert.Equal(t, []interface{}{"zone_w_1"}, dataMap(t, resp)["zones"])

	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/backup", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/backup", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/zones/zone_w_1/backup?layout=nope", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/zones/zone_w_9/backup", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestorePartialWrites(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)
	rec, _ := f.do(t, http.MethodPost, "/api/zones/zone_w_1/backup", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	f.world.FailWrites(vec.Vec3{X: 0, Y: 11, Z: 0}, assert.AnError)
	require.NoError(t, f.world.SetBlock(vec.Vec3{X: 1, Y: 11, Z: 0}, world.Empty()))
	rec, resp := f.do(t, http.MethodPost, "/api/zones/zone_w_1/restore", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, true, dataMap(t, resp)["partial"])
	// сбой и при очистке, и при записи клетки
	assert.EqualValues(t, 2, dataMap(t, resp)["failed_writes"])
}

func TestCorruptBackupIs422(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)
	require.NoError(t, f.store.Save(context.Background(), storage.Key("backups", "zone_w_1"), []byte("{broken")))

	rec, _ := f.do(t, http.MethodPost, "/api/zones/zone_w_1/restore", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBackupAll(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	rec, resp := f.do(t, http.MethodPost, "/api/backups?layout=market", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := dataMap(t, resp)
	assert.Equal(t, "market", d["layout"])
	assert.EqualValues(t, 1, d["total"])
	assert.EqualValues(t, 1, d["succeeded"])
}

func TestTeleportEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	rec, _ := f.do(t, http.MethodPut, "/api/zones/zone_w_1/teleport", `{"x":0.5,"y":10,"z":-2.5,"yaw":180}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, resp := f.do(t, http.MethodGet, "/api/zones/zone_w_1", "", "")
	tp, ok := dataMap(t, resp)["teleport"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 180, tp["yaw"])

	rec, _ = f.do(t, http.MethodPut, "/api/zones/zone_w_1/teleport", `{"x":0.5}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/teleport", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, resp = f.do(t, http.MethodGet, "/api/zones/zone_w_1", "", "")
	assert.NotContains(t, dataMap(t, resp), "teleport")
}

func TestColumnEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	rec, resp := f.do(t, http.MethodPut, "/api/zones/zone_w_1/columns", `{"x":2,"y":10,"z":0}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2,10,0", dataMap(t, resp)["anchor"])
	_, resp = f.do(t, http.MethodGet, "/api/zones/zone_w_1", "", "")
	assert.EqualValues(t, 3, dataMap(t, resp)["columns"])

	rec, _ = f.do(t, http.MethodPut, "/api/zones/zone_w_1/columns", `{"x":2,"y":12,"z":0}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec, _ = f.do(t, http.MethodPut, "/api/zones/zone_w_1/columns", `{"x":2}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPut, "/api/zones/zone_w_9/columns", `{"x":2,"y":10,"z":0}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/columns?x=1&z=0", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "середина ряда держит связность")
	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/columns?x=2&z=0", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/columns?x=2&z=0", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1/columns?x=a", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, resp = f.do(t, http.MethodGet, "/api/zones/zone_w_1", "", "")
	assert.EqualValues(t, 2, dataMap(t, resp)["columns"])
}

func TestIndexMaintenanceEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)
	f.do(t, http.MethodGet, "/api/locate?world=w&x=0&y=10&z=0", "", "")

	rec, resp := f.do(t, http.MethodPost, "/api/index/optimize", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 0, dataMap(t, resp)["removed"])

	rec, resp = f.do(t, http.MethodDelete, "/api/index/cache", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, dataMap(t, resp)["removed"])
	assert.Zero(t, f.app.Index.Stats().CacheSize)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Contains(t, rec.Body.String(), `zones_cache_maintenance_total{op="clear"} 1`)
}

func TestDeleteZone(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)

	rec, _ := f.do(t, http.MethodDelete, "/api/zones/zone_w_1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/zones/zone_w_1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/zones/zone_w_1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateAndStats(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)
	require.NoError(t, f.world.SetBlock(vec.Vec3{X: 1, Y: 10, Z: 0}, world.NewBlock(world.Stone)))

	rec, resp := f.do(t, http.MethodGet, "/api/validate", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := dataMap(t, resp)
	assert.EqualValues(t, 1, report["invalid"])
	assert.Len(t, report["issues"], 1)

	f.do(t, http.MethodGet, "/api/locate?world=w&x=0&y=10&z=0", "", "")
	f.do(t, http.MethodGet, "/api/locate?world=w&x=0&y=10&z=0", "", "")

	rec, resp = f.do(t, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := dataMap(t, resp)
	ix, ok := st["index"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, ix["zones"])
	assert.EqualValues(t, 1, ix["cache_hits"])
	assert.Contains(t, st, "server")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.scan(t)
	rec, _ := f.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "zones_scans_total")
	assert.Contains(t, body, "zones_api_http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodOptions, "/api/stats", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOperatorTokens(t *testing.T) {
	tokens, err := auth.NewTokens(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32))))
	require.NoError(t, err)
	f := newFixture(t, tokens)

	admin, err := tokens.Issue("ops", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	viewer, err := tokens.Issue("dash", auth.RoleViewer, time.Hour)
	require.NoError(t, err)

	rec, _ := f.do(t, http.MethodGet, "/api/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/stats", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/stats", "", viewer)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/worlds/w/scan", "", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/index/cache", "", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/worlds/w/scan", "", admin)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOperatorLogin(t *testing.T) {
	tokens, err := auth.NewTokens(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32))))
	require.NoError(t, err)
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	ops, err := auth.NewOperators([]auth.Operator{
		{Name: "alice", PasswordHash: hash, Role: auth.RoleAdmin},
		{Name: "bob", PasswordHash: hash, Role: auth.RoleViewer},
	})
	require.NoError(t, err)

	f := newFixture(t, tokens)
	f.server = NewServer(Config{
		App:       f.app,
		Tokens:    tokens,
		Operators: ops,
		TokenTTL:  time.Hour,
		Registry:  prometheus.NewRegistry(),
		Logger:    logging.Discard(),
	})

	login := func(body string) (int, LoginResponse) {
		rec, _ := f.do(t, http.MethodPost, "/api/auth/login", body, "")
		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
		return rec.Code, resp
	}

	code, resp := login(`{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, auth.RoleAdmin, resp.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	rec, _ := f.do(t, http.MethodPost, "/api/worlds/w/scan", "", resp.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	code, resp = login(`{"username":"bob","password":"pw"}`)
	require.Equal(t, http.StatusOK, code)
	rec, _ = f.do(t, http.MethodPost, "/api/worlds/w/scan", "", resp.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	code, _ = login(`{"username":"alice","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = login(`{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginDisabledWithoutOperators(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodPost, "/api/auth/login", `{"username":"a","password":"b"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
