package engine

import (
	"testing"
	"time"
)

func TestNodePolicy_ZeroValueMeansNoOverride(t *testing.T) {
	var p NodePolicy
	if p.Timeout != 0 {
		t.Errorf("expected zero Timeout, got %v", p.Timeout)
	}
	if got := getNodeTimeout(&p, 5*time.Second); got != 5*time.Second {
		t.Errorf("expected fallback to default timeout, got %v", got)
	}
}

func TestNodePolicy_TimeoutOverridesDefault(t *testing.T) {
	p := NodePolicy{Timeout: 2 * time.Second}
	if got := getNodeTimeout(&p, 30*time.Second); got != 2*time.Second {
		t.Errorf("expected policy timeout to win, got %v", got)
	}
}

func TestGetNodeTimeout_NilPolicy(t *testing.T) {
	if got := getNodeTimeout(nil, 10*time.Second); got != 10*time.Second {
		t.Errorf("expected default timeout with nil policy, got %v", got)
	}
	if got := getNodeTimeout(nil, 0); got != 0 {
		t.Errorf("expected unlimited (0) with nil policy and no default, got %v", got)
	}
}
