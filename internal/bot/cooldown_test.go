package bot

import (
	"testing"
	"time"
)

func TestCooldownLimiter(t *testing.T) {
	now := time.Now()
	limiter := NewCooldownLimiter(3500 * time.Millisecond)
	limiter.now = func() time.Time { return now }

	ok, _ := limiter.Allow("100", false)
	if !ok {
		t.Fatal("Expected first command to be allowed")
	}

	now = now.Add(time.Second)
	ok, wait := limiter.Allow("100", false)
	if ok {
		t.Fatal("Expected second command within the window to be blocked")
	}
	if wait != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s remaining, got %v", wait)
	}

	// A blocked attempt must not push the window forward.
	now = now.Add(2500 * time.Millisecond)
	if ok, _ := limiter.Allow("100", false); !ok {
		t.Error("Expected command after the window to be allowed")
	}
}

func TestCooldownLimiter_PrivilegedBypass(t *testing.T) {
	limiter := NewCooldownLimiter(time.Hour)

	for i := 0; i < 3; i++ {
		if ok, _ := limiter.Allow("999", true); !ok {
			t.Fatal("Expected privileged user to bypass the cooldown")
		}
	}
}

func TestCooldownLimiter_PerUser(t *testing.T) {
	now := time.Now()
	limiter := NewCooldownLimiter(time.Minute)
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.Allow("100", false); !ok {
		t.Fatal("Expected first user to be allowed")
	}
	if ok, _ := limiter.Allow("200", false); !ok {
		t.Error("Expected a different user to have an independent window")
	}
}
