// internal/web/server_test.go
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/maintenance"
	"github.com/owl29bd/cctv-automation-backend/internal/monitoring"
	"github.com/owl29bd/cctv-automation-backend/internal/realtime"
)

const testSecret = "test-secret"

type stubProber struct{}

func (stubProber) Name() string { return "stub" }

func (stubProber) Probe(ctx context.Context, address string) monitoring.ProbeResult {
	return monitoring.ProbeResult{Success: address == "10.0.0.1"}
}

type fixture struct {
	server *Server
	store  *database.BoltStore
	auth   *Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	users := []database.User{
		{ID: "admin-1", Email: "admin@example.com", Role: database.RoleAdministrator},
		{ID: "provider-1", Email: "fixer@example.com", Role: database.RoleServiceProvider},
		{ID: "viewer-1", Email: "viewer@example.com", Role: database.RoleUser},
	}
	for i := range users {
		if err := store.CreateUser(ctx, &users[i]); err != nil {
			t.Fatalf("Failed to seed user: %v", err)
		}
	}
	for _, camera := range []database.Camera{
		{ID: "cam-1", Name: "Gate", IP: "10.0.0.1", Status: database.CameraOffline},
		{ID: "cam-2", Name: "Yard", IP: "10.0.0.2", Status: database.CameraOnline},
	} {
		camera := camera
		if err := store.CreateCamera(ctx, &camera); err != nil {
			t.Fatalf("Failed to seed camera: %v", err)
		}
	}

	cfg := &config.Config{
		Server:     config.ServerConfig{Port: ":0"},
		Database:   config.DatabaseConfig{HistoryRetention: time.Hour},
		Prometheus: config.PrometheusConfig{Enabled: true, MetricsPath: "/metrics"},
		Monitoring: config.MonitoringConfig{ScanInterval: time.Hour},
		Auth:       config.AuthConfig{JWTSecret: testSecret, Issuer: "cctv-test"},
		Logging:    config.LoggingConfig{Level: "debug"},
	}

	hub := realtime.NewHub(realtime.NewRegistry(time.Minute, 10), cfg.Realtime)
	t.Cleanup(hub.Stop)

	scanner := monitoring.NewScanner(store, stubProber{}, monitoring.WithBroadcaster(hub))
	engine := monitoring.NewEngine(cfg, store, scanner, nil)

	server := NewServer(cfg, Dependencies{
		Store:       store,
		Engine:      engine,
		Maintenance: maintenance.NewService(store, hub, nil),
		Hub:         hub,
	})
	return &fixture{server: server, store: store, auth: NewAuthenticator(cfg.Auth)}
}

func (f *fixture) token(t *testing.T, userID string, role database.Role) string {
	t.Helper()
	token, err := f.auth.Sign(Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Failed to decode body %q: %v", w.Body.String(), err)
	}
	return env
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("Expected healthy status, got %s", w.Body.String())
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/cameras", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
	if env := decode(t, w); env.Error.Code != "UNAUTHENTICATED" {
		t.Errorf("Expected UNAUTHENTICATED, got %s", env.Error.Code)
	}

	w = f.do(t, http.MethodGet, "/api/cameras", "not-a-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a garbage token, got %d", w.Code)
	}

	forged, _ := NewAuthenticator(config.AuthConfig{JWTSecret: "other", Issuer: "cctv-test"}).Sign(Claims{
		Role:             string(database.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1"},
	})
	w = f.do(t, http.MethodGet, "/api/cameras", forged, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with a token signed by another key, got %d", w.Code)
	}

	expired, _ := f.auth.Sign(Claims{
		Role: string(database.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	w = f.do(t, http.MethodGet, "/api/cameras", expired, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with an expired token, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/cameras", f.token(t, "viewer-1", database.RoleUser), nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for any authenticated user, got %d", w.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	provider := f.token(t, "provider-1", database.RoleServiceProvider)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/cameras"},
		{http.MethodPatch, "/api/cameras/cam-1/status"},
		{http.MethodPost, "/api/scan"},
		{http.MethodGet, "/api/realtime/sessions"},
		{http.MethodDelete, "/api/history/purge"},
	} {
		w := f.do(t, route.method, route.path, provider, map[string]string{})
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", route.method, route.path, w.Code)
		}
	}
}

func TestCameraEndpoints(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/cameras", admin, map[string]string{
		"id":   "cam-3",
		"name": "Dock",
		"ip":   "10.0.0.3",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/cameras", admin, map[string]string{"name": "No address"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing ip, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/cameras?status=online", admin, nil)
	var online []CameraResponse
	json.Unmarshal(decode(t, w).Data, &online)
	if len(online) != 2 {
		t.Errorf("Expected 2 online cameras, got %d", len(online))
	}

	w = f.do(t, http.MethodGet, "/api/cameras?status=broken", admin, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status filter, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/cameras/missing", admin, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if env := decode(t, w); env.Error.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %s", env.Error.Code)
	}

	w = f.do(t, http.MethodPatch, "/api/cameras/cam-2/status", admin, map[string]string{"status": "dead"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	camera, _ := f.store.GetCamera(context.Background(), "cam-2")
	if camera.Status != database.CameraDead {
		t.Errorf("Expected cam-2 dead, got %s", camera.Status)
	}

	w = f.do(t, http.MethodGet, "/api/cameras/cam-2/history", admin, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"api"`) {
		t.Errorf("Expected history entry from api, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPatch, "/api/cameras/cam-2/status", admin, map[string]string{"status": "asleep"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid status, got %d", w.Code)
	}
}

func TestCameraImageRoundTrip(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/cameras/cam-1/image", admin, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before upload, got %d", w.Code)
	}

	png := []byte("\x89PNG\r\n\x1a\n0000")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "snapshot.png")
	part.Write(png)
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/cameras/cam-1/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on upload, got %d: %s", rec.Code, rec.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/cameras/cam-1/image", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Error("Expected the uploaded bytes back")
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}

	w = f.do(t, http.MethodGet, "/api/cameras/cam-1", admin, nil)
	if strings.Contains(w.Body.String(), `"image"`) {
		t.Error("Expected camera JSON to omit image bytes")
	}
	if !strings.Contains(w.Body.String(), `"hasImage":true`) {
		t.Errorf("Expected hasImage flag, got %s", w.Body.String())
	}
}

func TestMaintenanceWorkflowOverHTTP(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdministrator)
	provider := f.token(t, "provider-1", database.RoleServiceProvider)

	w := f.do(t, http.MethodPost, "/api/maintenance-requests", admin, map[string]string{
		"cameraId": "cam-1",
		"notes":    "lens cracked",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created maintenance.Response
	json.Unmarshal(decode(t, w).Data, &created)
	if created.Status != string(database.RequestPending) {
		t.Errorf("Expected pending, got %s", created.Status)
	}
	if created.ServiceProviderID != nil {
		t.Errorf("Expected no provider at creation, got %v", *created.ServiceProviderID)
	}

	w = f.do(t, http.MethodPost, "/api/maintenance-requests", admin, map[string]string{"cameraId": "cam-1"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a second active request, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/maintenance-requests", provider, map[string]string{"cameraId": "cam-2"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 when a provider creates, got %d", w.Code)
	}

	base := "/api/maintenance-requests/" + created.ID

	w = f.do(t, http.MethodPatch, base+"/verify", admin, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 verifying a pending request, got %d", w.Code)
	}

	w = f.do(t, http.MethodPatch, base+"/accept", provider, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on accept, got %d: %s", w.Code, w.Body.String())
	}
	camera, _ := f.store.GetCamera(context.Background(), "cam-1")
	if camera.Status != database.CameraMaintenance {
		t.Errorf("Expected camera in maintenance, got %s", camera.Status)
	}

	w = f.do(t, http.MethodGet, "/api/maintenance-requests/mine", provider, nil)
	var mine PaginatedResponse
	json.Unmarshal(w.Body.Bytes(), &mine)
	if mine.TotalData != 1 {
		t.Errorf("Expected 1 request for provider, got %d", mine.TotalData)
	}

	w = f.do(t, http.MethodPatch, base+"/apply-verification", provider, map[string]string{"notes": "replaced lens"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on apply, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPatch, base+"/verify", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on verify, got %d: %s", w.Code, w.Body.String())
	}
	var verified maintenance.Response
	json.Unmarshal(decode(t, w).Data, &verified)
	if verified.Status != string(database.RequestCompleted) {
		t.Errorf("Expected completed, got %s", verified.Status)
	}
	if verified.Notes != "replaced lens" {
		t.Errorf("Expected notes overwritten, got %q", verified.Notes)
	}
	camera, _ = f.store.GetCamera(context.Background(), "cam-1")
	if camera.Status != database.CameraOnline {
		t.Errorf("Expected camera online after verify, got %s", camera.Status)
	}

	w = f.do(t, http.MethodGet, base+"?resolve=true", admin, nil)
	var details maintenance.DetailsResponse
	json.Unmarshal(decode(t, w).Data, &details)
	if details.Camera == nil || details.Camera.ID != "cam-1" {
		t.Errorf("Expected resolved camera, got %+v", details.Camera)
	}
	if details.ServiceProvider == nil || details.ServiceProvider.ID != "provider-1" {
		t.Errorf("Expected resolved provider, got %+v", details.ServiceProvider)
	}

	w = f.do(t, http.MethodGet, "/api/maintenance-requests/latest/cam-1", admin, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), created.ID) {
		t.Errorf("Expected latest request for cam-1, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMaintenanceAssignAndComplete(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdmin)
	provider := f.token(t, "provider-1", database.RoleServiceProvider)

	w := f.do(t, http.MethodPost, "/api/maintenance-requests", admin, map[string]string{"cameraId": "cam-2"})
	var created maintenance.Response
	json.Unmarshal(decode(t, w).Data, &created)
	base := "/api/maintenance-requests/" + created.ID

	w = f.do(t, http.MethodGet, "/api/maintenance-requests/unassigned", admin, nil)
	var unassigned PaginatedResponse
	json.Unmarshal(w.Body.Bytes(), &unassigned)
	if unassigned.TotalData != 1 {
		t.Errorf("Expected 1 unassigned request, got %d", unassigned.TotalData)
	}

	w = f.do(t, http.MethodPatch, base+"/assign-service-provider", admin, map[string]string{"serviceProviderId": "viewer-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 assigning a non-provider, got %d", w.Code)
	}

	w = f.do(t, http.MethodPatch, base+"/assign-service-provider", admin, map[string]string{"serviceProviderId": "provider-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on assign, got %d: %s", w.Code, w.Body.String())
	}

	f.do(t, http.MethodPatch, base+"/accept", provider, nil)

	w = f.do(t, http.MethodPatch, base+"/complete", provider, map[string]string{
		"cameraStatus": "dead",
		"feedback":     "sensor burnt out",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on complete, got %d: %s", w.Code, w.Body.String())
	}
	var completed maintenance.Response
	json.Unmarshal(decode(t, w).Data, &completed)
	if completed.Feedback != "sensor burnt out" {
		t.Errorf("Expected feedback stored, got %q", completed.Feedback)
	}
	camera, _ := f.store.GetCamera(context.Background(), "cam-2")
	if camera.Status != database.CameraDead {
		t.Errorf("Expected reported camera status dead, got %s", camera.Status)
	}

	w = f.do(t, http.MethodPatch, base+"/complete", provider, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 completing twice, got %d", w.Code)
	}
}

func TestMaintenanceUnassignOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.token(t, "admin-1", database.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/maintenance-requests", admin, map[string]string{"cameraId": "cam-2"})
	var created maintenance.Response
	json.Unmarshal(decode(t, w).Data, &created)
	path := "/api/maintenance-requests/" + created.ID + "/assign-service-provider"

	unassignBodies := []struct {
		name string
		body interface{}
	}{
		{"empty id", map[string]string{"serviceProviderId": ""}},
		{"absent id", map[string]string{}},
		{"no body", nil},
	}

	for _, tt := range unassignBodies {
		w = f.do(t, http.MethodPatch, path, admin, map[string]string{"serviceProviderId": "provider-1"})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 on assign, got %d: %s", tt.name, w.Code, w.Body.String())
		}
		req, _ := f.store.GetRequest(ctx, created.ID)
		if req.ServiceProviderID != "provider-1" {
			t.Fatalf("%s: expected provider-1 assigned, got %q", tt.name, req.ServiceProviderID)
		}

		w = f.do(t, http.MethodPatch, path, admin, tt.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 on unassign, got %d: %s", tt.name, w.Code, w.Body.String())
		}
		var updated maintenance.Response
		json.Unmarshal(decode(t, w).Data, &updated)
		if updated.ServiceProviderID != nil {
			t.Errorf("%s: expected no provider in response, got %q", tt.name, *updated.ServiceProviderID)
		}
		req, _ = f.store.GetRequest(ctx, created.ID)
		if req.ServiceProviderID != "" {
			t.Errorf("%s: expected provider cleared in store, got %q", tt.name, req.ServiceProviderID)
		}
	}

	w = f.do(t, http.MethodGet, "/api/maintenance-requests/unassigned", admin, nil)
	var unassigned PaginatedResponse
	json.Unmarshal(w.Body.Bytes(), &unassigned)
	if unassigned.TotalData != 1 {
		t.Errorf("Expected the request back in the unassigned list, got %d", unassigned.TotalData)
	}
}

func TestRealtimeEndpointBeforeStart(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/ws", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 before the channel starts, got %d", w.Code)
	}
	if code := decode(t, w).Error.Code; code != "CHANNEL_UNINITIALIZED" {
		t.Errorf("Expected CHANNEL_UNINITIALIZED, got %q", code)
	}
}

func TestMaintenanceListPagination(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdmin)

	f.do(t, http.MethodPost, "/api/maintenance-requests", admin, map[string]string{"cameraId": "cam-1"})
	f.do(t, http.MethodPost, "/api/maintenance-requests", admin, map[string]string{"cameraId": "cam-2"})

	w := f.do(t, http.MethodGet, "/api/maintenance-requests?page=1&limit=1", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var page PaginatedResponse
	json.Unmarshal(w.Body.Bytes(), &page)
	if page.TotalData != 2 || page.TotalPages != 2 {
		t.Errorf("Expected 2 items over 2 pages, got %d over %d", page.TotalData, page.TotalPages)
	}
	if !page.HasNextPage || page.HasPrevPage {
		t.Errorf("Expected next but no previous page, got next=%v prev=%v", page.HasNextPage, page.HasPrevPage)
	}

	w = f.do(t, http.MethodGet, "/api/maintenance-requests?status=bogus", admin, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}
}

func TestRunScanEndpoint(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdmin)

	w := f.do(t, http.MethodPost, "/api/scan", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report monitoring.ScanReport
	json.Unmarshal(decode(t, w).Data, &report)
	if len(report.Results) != 2 {
		t.Errorf("Expected 2 probe results, got %d", len(report.Results))
	}

	// cam-1 answered while offline; cam-2 did not answer while online.
	camera, _ := f.store.GetCamera(context.Background(), "cam-1")
	if camera.Status != database.CameraOnline {
		t.Errorf("Expected cam-1 online, got %s", camera.Status)
	}
	camera, _ = f.store.GetCamera(context.Background(), "cam-2")
	if camera.Status != database.CameraOffline {
		t.Errorf("Expected cam-2 offline, got %s", camera.Status)
	}
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	admin := f.token(t, "admin-1", database.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/realtime/sessions", admin, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("Expected empty session list, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodDelete, "/api/history/purge", admin, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on purge, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/notifications/stats", admin, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"enabled":false`) {
		t.Errorf("Expected disabled notifications, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/notifications/test", admin, map[string]string{"message": "hello"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 when pushover is disabled, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/stats", admin, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_cameras":2`) {
		t.Errorf("Expected database stats, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMetricsAndVersion(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 from metrics, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/version", "", nil)
	var info BuildInfo
	json.Unmarshal(decode(t, w).Data, &info)
	if info.Version != Version || info.GoVersion == "" {
		t.Errorf("Expected build info, got %+v", info)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodOptions, "/api/cameras", "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
