package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCheckHealthAggregation(t *testing.T) {
	healthy := func() CheckResult { return CheckResult{Status: StatusHealthy} }
	degraded := func() CheckResult { return CheckResult{Status: StatusDegraded} }
	unhealthy := func() CheckResult { return CheckResult{Status: StatusUnhealthy} }

	cases := []struct {
		name   string
		checks map[string]HealthCheck
		want   string
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", map[string]HealthCheck{"a": healthy, "b": healthy}, StatusHealthy},
		{"one degraded", map[string]HealthCheck{"a": healthy, "b": degraded}, StatusDegraded},
		{"unhealthy wins", map[string]HealthCheck{"a": degraded, "b": unhealthy}, StatusUnhealthy},
		{"unknown status is unhealthy", map[string]HealthCheck{
			"a": func() CheckResult { return CheckResult{Status: "???"} },
		}, StatusUnhealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hc := NewHealthChecker("svc", "v1")
			for name, check := range tc.checks {
				hc.AddCheck(name, check)
			}
			got := hc.CheckHealth()
			if got.Status != tc.want {
				t.Errorf("Status = %q, want %q", got.Status, tc.want)
			}
			if got.Service != "svc" || got.Version != "v1" {
				t.Errorf("identity = %s/%s", got.Service, got.Version)
			}
		})
	}
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(hc *HealthChecker) (*httptest.ResponseRecorder, HealthStatus) {
		router := gin.New()
		router.GET("/health", hc.Handler())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body HealthStatus
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return w, body
	}

	ok := NewHealthChecker("svc", "v1")
	w, body := serve(ok)
	if w.Code != http.StatusOK || body.Status != StatusHealthy {
		t.Errorf("healthy: code=%d status=%q", w.Code, body.Status)
	}

	bad := NewHealthChecker("svc", "v1")
	bad.AddCheck("down", func() CheckResult {
		return CheckResult{Status: StatusUnhealthy, Message: "backend gone"}
	})
	w, body = serve(bad)
	if w.Code != http.StatusServiceUnavailable || body.Status != StatusUnhealthy {
		t.Errorf("unhealthy: code=%d status=%q", w.Code, body.Status)
	}
	if body.Checks["down"].Message != "backend gone" {
		t.Errorf("check message not propagated: %+v", body.Checks["down"])
	}
}

func TestDataDirHealthCheck(t *testing.T) {
	dir := t.TempDir()
	if res := DataDirHealthCheck(dir)(); res.Status != StatusHealthy {
		t.Errorf("existing dir: %+v", res)
	}
	if res := DataDirHealthCheck(filepath.Join(dir, "missing"))(); res.Status != StatusUnhealthy {
		t.Errorf("missing dir reported %q", res.Status)
	}

	// A plain file at the path is not usable as a data root.
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if res := DataDirHealthCheck(file)(); res.Status != StatusUnhealthy {
		t.Errorf("file path reported %q", res.Status)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"A": "set", "B": "also"})()
	if res.Status != StatusHealthy {
		t.Errorf("complete config reported %q", res.Status)
	}
	res = ConfigurationHealthCheck(map[string]string{"A": "set", "B": ""})()
	if res.Status != StatusUnhealthy {
		t.Errorf("missing config reported %q", res.Status)
	}
}

func TestKafkaProducerHealthCheckNilClient(t *testing.T) {
	if res := KafkaProducerHealthCheck(nil)(); res.Status != StatusUnhealthy {
		t.Errorf("nil client reported %q", res.Status)
	}
}

func TestRedisHealthCheckNilClient(t *testing.T) {
	if res := RedisHealthCheck(nil)(); res.Status != StatusUnhealthy {
		t.Errorf("nil client reported %q", res.Status)
	}
}
