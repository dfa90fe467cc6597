package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetHealthChecker() {
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

type fakeStatsSource struct {
	pending   int
	connected bool
}

func (f fakeStatsSource) PendingCount() int { return f.pending }
func (f fakeStatsSource) Connected() bool   { return f.connected }

func TestRegisterComponent_NotCritical(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("cache", true, "warm")

	comp := healthChecker.components["cache"]
	if comp.Critical {
		t.Error("RegisterComponent should not mark the component critical")
	}
	if !comp.Healthy {
		t.Error("component should be healthy")
	}
}

func TestRegisterCriticalComponent_GatesReadiness(t *testing.T) {
	resetHealthChecker()

	RegisterCriticalComponent("transporter", false, "connecting")

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready while the only critical component is unhealthy, got %q", readiness.Status)
	}
}

func TestGetReadiness_NoCriticalComponentsRegistered(t *testing.T) {
	resetHealthChecker()

	RegisterComponent("cache", true, "warm")

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready with zero critical components, got %q", readiness.Status)
	}
	if readiness.Message == "" {
		t.Error("expected a message explaining why there's nothing critical registered")
	}
}

func TestGetReadiness_DerivesCriticalSetFromRegistrations(t *testing.T) {
	resetHealthChecker()

	// Register a differently-named critical set than any hardcoded literal
	// would assume, proving readiness is derived, not looked up by name.
	RegisterCriticalComponent("leader-election", true, "")
	RegisterCriticalComponent("object-store", true, "")
	RegisterComponent("optional-cache", false, "cold")

	readiness := GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("expected ready when both critical components are healthy, got %q: %s", readiness.Status, readiness.Message)
	}
	if _, ok := readiness.Components["optional-cache"]; ok {
		t.Error("non-critical component should not appear in the readiness component set")
	}
}

func TestUpdateComponent_PreservesCriticalFlag(t *testing.T) {
	resetHealthChecker()

	RegisterCriticalComponent("transporter", true, "connected")
	UpdateComponent("transporter", false, "lost connection")

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Error("UpdateComponent must not demote a critical component to non-critical")
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "1.0.0"

	RegisterCriticalComponent("transporter", true, "")
	RegisterCriticalComponent("registry", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}
	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealthChecker()

	RegisterCriticalComponent("registry", true, "")
	RegisterCriticalComponent("transporter", false, "not connected")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if health.Components["transporter"] != "unhealthy: not connected" {
		t.Errorf("unexpected transporter status: %s", health.Components["transporter"])
	}
}

func TestGetHealth_StatsSourceFoldsInPendingAndConnected(t *testing.T) {
	resetHealthChecker()
	RegisterCriticalComponent("transporter", true, "")
	SetStatsSource(fakeStatsSource{pending: 3, connected: true})
	t.Cleanup(func() { SetStatsSource(nil) })

	health := GetHealth()
	if health.PendingRequests != 3 {
		t.Errorf("expected PendingRequests 3, got %d", health.PendingRequests)
	}
	if !health.Connected {
		t.Error("expected Connected true from attached stats source")
	}
}

func TestGetHealth_BacklogReportsDegraded(t *testing.T) {
	resetHealthChecker()
	RegisterCriticalComponent("transporter", true, "")
	SetStatsSource(fakeStatsSource{pending: degradedBacklogThreshold + 1, connected: true})
	t.Cleanup(func() { SetStatsSource(nil) })

	health := GetHealth()
	if health.Status != "degraded" {
		t.Errorf("expected status 'degraded' past the backlog threshold, got %q", health.Status)
	}
}

func TestGetReadiness_IgnoresBacklogForReadiness(t *testing.T) {
	resetHealthChecker()
	RegisterCriticalComponent("transporter", true, "")
	SetStatsSource(fakeStatsSource{pending: degradedBacklogThreshold + 1, connected: true})
	t.Cleanup(func() { SetStatsSource(nil) })

	readiness := GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("a request backlog should not block readiness, got %q", readiness.Status)
	}
	if readiness.PendingRequests != degradedBacklogThreshold+1 {
		t.Errorf("expected readiness to still report the backlog size, got %d", readiness.PendingRequests)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealthChecker()
	healthChecker.version = "test"
	RegisterCriticalComponent("test", true, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	HealthHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealthChecker()
	RegisterComponent("test", false, "broken")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	HealthHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", health.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	resetHealthChecker()
	RegisterCriticalComponent("transporter", true, "")
	RegisterCriticalComponent("registry", true, "")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	ReadyHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealthChecker()
	RegisterCriticalComponent("registry", true, "")
	RegisterCriticalComponent("transporter", false, "connecting")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	ReadyHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealthChecker()

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()

	LivenessHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}
	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}
