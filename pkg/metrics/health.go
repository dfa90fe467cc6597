package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// degradedBacklogThreshold is how many outbound requests can sit in the
// pending table before a structurally healthy node is reported "degraded"
// rather than "healthy". The backlog affects GetHealth only; GetReadiness
// reports it but never turns a node not_ready because of it.
const degradedBacklogThreshold = 1000

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`

	// PendingRequests and Connected mirror the live Transit instance backing
	// this node, when one has been attached via SetStatsSource. Zero-valued
	// and omitted if no source is attached.
	PendingRequests int  `json:"pending_requests,omitempty"`
	Connected       bool `json:"connected,omitempty"`
}

var (
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
)

// ComponentHealth tracks the health of a single component. Critical marks
// whether this component's health gates readiness — set by calling
// RegisterCriticalComponent instead of RegisterComponent, so the critical set
// is whatever the running node actually registered, not a literal baked into
// this package.
type ComponentHealth struct {
	Name     string
	Healthy  bool
	Critical bool
	Message  string
	Updated  time.Time
}

// HealthChecker manages health checks for various components
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
	stats      StatsSource
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetStatsSource attaches a live Transit instance whose PendingCount and
// Connected are folded into GetHealth/GetReadiness. Passing nil detaches it.
func SetStatsSource(source StatsSource) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.stats = source
}

// RegisterComponent registers a non-critical component for health checking.
// Its health is reported in GetHealth but does not gate GetReadiness.
func RegisterComponent(name string, healthy bool, message string) {
	registerComponent(name, healthy, false, message)
}

// RegisterCriticalComponent registers a component whose health gates
// readiness: GetReadiness derives its critical set by scanning for components
// registered this way, rather than from a hardcoded name list.
func RegisterCriticalComponent(name string, healthy bool, message string) {
	registerComponent(name, healthy, true, message)
}

func registerComponent(name string, healthy, critical bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	// A component keeps its prior Critical flag across plain updates so that
	// UpdateComponent (which always calls RegisterComponent) doesn't silently
	// demote a critical component back to non-critical.
	if existing, ok := healthChecker.components[name]; ok && existing.Critical {
		critical = true
	}

	healthChecker.components[name] = ComponentHealth{
		Name:     name,
		Healthy:  healthy,
		Critical: critical,
		Message:  message,
		Updated:  time.Now(),
	}
}

// UpdateComponent updates the health status of a registered component,
// preserving whether it was registered as critical.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth returns the overall health status, including any attached
// StatsSource's pending-queue depth and connection state.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	for name, comp := range healthChecker.components {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	result := HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
		StartTime:  healthChecker.startTime,
	}

	if healthChecker.stats != nil {
		result.PendingRequests = healthChecker.stats.PendingCount()
		result.Connected = healthChecker.stats.Connected()
		if result.Status == "healthy" && result.PendingRequests > degradedBacklogThreshold {
			result.Status = "degraded"
			result.Message = "pending request backlog exceeds threshold"
		}
	}

	return result
}

// GetReadiness returns readiness status. A node is ready only once every
// component registered via RegisterCriticalComponent reports healthy;
// non-critical components and any attached StatsSource backlog are surfaced
// informationally but never block readiness — a node mid-backlog can still
// accept new work.
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	var criticalNames []string
	for name, comp := range healthChecker.components {
		if !comp.Critical {
			continue
		}
		criticalNames = append(criticalNames, name)

		if !comp.Healthy {
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		} else {
			components[name] = "ready"
		}
	}

	if len(criticalNames) == 0 {
		status = "not_ready"
		message = "no critical components registered yet"
	}

	result := HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
		StartTime:  healthChecker.startTime,
	}

	if healthChecker.stats != nil {
		result.PendingRequests = healthChecker.stats.PendingCount()
		result.Connected = healthChecker.stats.Connected()
	}

	return result
}

// HealthHandler returns an HTTP handler for the /health endpoint
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
