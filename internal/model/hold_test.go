package model

import (
	"testing"
	"time"
)

func TestHoldIsExpired(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future expiry is not expired", now.Add(time.Minute), false},
		{"past expiry is expired", now.Add(-time.Minute), true},
		{"expiry exactly now is expired", now, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := Hold{ExpiresAt: c.expiresAt}
			if got := h.IsExpired(now); got != c.want {
				t.Errorf("IsExpired() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestHoldIsPending(t *testing.T) {
	if !(Hold{Status: HoldStatusPending}).IsPending() {
		t.Error("expected a pending hold to report IsPending() == true")
	}
	if (Hold{Status: HoldStatusConsumed}).IsPending() {
		t.Error("expected a consumed hold to report IsPending() == false")
	}
	if (Hold{Status: HoldStatusExpired}).IsPending() {
		t.Error("expected an expired hold to report IsPending() == false")
	}
}
