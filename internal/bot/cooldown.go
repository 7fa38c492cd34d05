package bot

import (
	"sync"
	"time"
)

// CooldownLimiter enforces a minimum interval between commands per user.
// Privileged roles bypass it. State is in-process only and resets on
// restart.
type CooldownLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewCooldownLimiter(interval time.Duration) *CooldownLimiter {
	return &CooldownLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether the user may run a command now, and if not, how
// long is left. The last-allowed timestamp moves only on success.
func (l *CooldownLimiter) Allow(userId string, privileged bool) (bool, time.Duration) {
	if privileged {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if last, ok := l.last[userId]; ok {
		if elapsed := now.Sub(last); elapsed < l.interval {
			return false, l.interval - elapsed
		}
	}
	l.last[userId] = now
	return true, 0
}
