package monitoring

import (
	"net/http/httptest"
	"testing"

	"synapsechain/chain/types"
)

func TestHealthCheckerStartsHealthy(t *testing.T) {
	hc := NewHealthChecker()
	if hc.Status().Halted {
		t.Fatalf("expected a fresh health checker to start healthy")
	}
}

func TestHealthCheckerLatchesFirstViolation(t *testing.T) {
	hc := NewHealthChecker()
	hc.Halt(&types.IntegrityViolation{Component: "supply", Detail: "burned exceeded circulating"})
	hc.Halt(&types.IntegrityViolation{Component: "weights", Detail: "a later, different violation"})

	status := hc.Status()
	if !status.Halted {
		t.Fatalf("expected halted after Halt")
	}
	if status.Component != "supply" {
		t.Fatalf("expected the first violation's component retained, got %q", status.Component)
	}
}

func TestHealthzReturnsServiceUnavailableAfterHalt(t *testing.T) {
	s := New("127.0.0.1:0")
	s.Halt(&types.IntegrityViolation{Component: "supply", Detail: "boom"})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != 503 {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHealthzReturnsOKBeforeHalt(t *testing.T) {
	s := New("127.0.0.1:0")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRecoverAndHaltRePanicsAfterRecordingViolation(t *testing.T) {
	s := New("127.0.0.1:0")

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected RecoverAndHalt to re-panic")
			}
		}()
		defer s.RecoverAndHalt()
		types.PanicIntegrity("weights", "outlier set consumed entire quorum")
	}()

	if !s.health.Status().Halted {
		t.Fatalf("expected health checker halted after recovering an IntegrityViolation")
	}
}
