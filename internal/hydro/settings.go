package hydro

import (
	"sync"
	"time"
)

// Settings is the process-wide outbound-call policy.
type Settings struct {
	RateLimit float64       // calls per second; <= 0 disables pacing
	Retries   int           // total attempts per call
	Backoff   time.Duration // first retry wait; doubled on every further retry
}

// DefaultSettings mirrors the CLI defaults.
func DefaultSettings() Settings {
	return Settings{
		RateLimit: 5,
		Retries:   5,
		Backoff:   500 * time.Millisecond,
	}
}

// SettingsSource is read at every call boundary so that changes apply
// to the next call.
type SettingsSource interface {
	Current() Settings
}

// Current lets a plain Settings value act as a fixed source.
func (s Settings) Current() Settings { return s }

// SettingsStore is a mutable, concurrency-safe SettingsSource.
type SettingsStore struct {
	mu sync.RWMutex
	s  Settings
}

func NewSettingsStore(s Settings) *SettingsStore {
	return &SettingsStore{s: s}
}

func (st *SettingsStore) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

func (st *SettingsStore) Set(s Settings) {
	st.mu.Lock()
	st.s = s
	st.mu.Unlock()
}

// Update applies fn to the stored settings under the write lock.
func (st *SettingsStore) Update(fn func(*Settings)) {
	st.mu.Lock()
	fn(&st.s)
	st.mu.Unlock()
}
