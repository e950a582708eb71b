package limiter

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestDefaultKeyStrategy(t *testing.T) {
	var nilIP net.IP
	var nilPtr *Identity

	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"nil", nil, AnonymousKey},
		{"empty string", "", AnonymousKey},
		{"typed nil pointer", nilPtr, AnonymousKey},
		{"nil slice", nilIP, AnonymousKey},
		{"string", "user-123", "user-123"},
		{"identity", Identity{Namespace: "ip", Key: "10.0.0.1"}, "ip:10.0.0.1"},
		{"stringer", net.ParseIP("192.0.2.1"), "192.0.2.1"},
		{"int", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultKeyStrategy.ComputeKey(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestStrictKeyStrategy(t *testing.T) {
	if _, err := StrictKeyStrategy.ComputeKey(nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for nil input, got %v", err)
	}
	if _, err := StrictKeyStrategy.ComputeKey(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty input, got %v", err)
	}
	got, err := StrictKeyStrategy.ComputeKey(Identity{Namespace: "user", Key: "7"})
	if err != nil || got != "user:7" {
		t.Errorf("expected user:7, got %q (err=%v)", got, err)
	}
}

func TestConsumeFor(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute, NewManualClock(epoch))

	dec, err := ConsumeFor(l, nil, nil)
	if err != nil || !dec.Allowed {
		t.Fatalf("expected anonymous call to be allowed, got %+v (err=%v)", dec, err)
	}
	dec, _ = ConsumeFor(l, DefaultKeyStrategy, "")
	if dec.Allowed {
		t.Error("expected empty input to share the exhausted anonymous key")
	}

	custom := KeyFunc(func(input any) (string, error) {
		return "tenant:" + input.(string), nil
	})
	if dec, _ := ConsumeFor(l, custom, "acme"); !dec.Allowed {
		t.Error("expected custom key to have its own quota")
	}

	if _, err := ConsumeFor(l, StrictKeyStrategy, nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected key derivation error to propagate, got %v", err)
	}
	if got := l.TrackedKeys(); got != 2 {
		t.Errorf("expected 2 tracked keys, got %d", got)
	}
}
