// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Strategy selects how callers are mapped to connection registries. It is
// fixed for the process lifetime.
type Strategy string

const (
	// StrategyStandard gives each persistent caller context its own
	// registry, torn down with the context (Release).
	StrategyStandard Strategy = "standard"
	// StrategyHeader keys registries by a caller-supplied opaque string
	// and evicts idle ones in the background.
	StrategyHeader Strategy = "header"
	// StrategyGlobal shares a single registry across all callers.
	StrategyGlobal Strategy = "global"
)

// DefaultSessionTTL is how long a header-keyed session may stay idle.
const DefaultSessionTTL = 300 * time.Second

// DefaultReapInterval is how often the reaper scans for idle sessions.
const DefaultReapInterval = time.Minute

type sessionEntry struct {
	registry     *Registry
	lastAccessed time.Time
}

// SessionStore maps session keys to connection registries according to the
// configured strategy and evicts idle ones.
type SessionStore struct {
	logger      *zap.SugaredLogger
	strategy    Strategy
	ttl         time.Duration
	newRegistry func() *Registry
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	global   *Registry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	running  bool
}

// NewSessionStore creates a store for the given strategy. newRegistry is
// invoked for every session that needs a fresh registry.
func NewSessionStore(logger *zap.SugaredLogger, strategy Strategy, ttl time.Duration, newRegistry func() *Registry) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &SessionStore{
		logger:      logger,
		strategy:    strategy,
		ttl:         ttl,
		newRegistry: newRegistry,
		now:         time.Now,
		sessions:    make(map[string]*sessionEntry),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	if strategy == StrategyGlobal {
		s.global = newRegistry()
	}
	return s
}

// Strategy reports the store's addressing strategy.
func (s *SessionStore) Strategy() Strategy { return s.strategy }

// Resolve returns the registry for key, creating it on first use. The
// create-or-reuse path is atomic: concurrent first use of one key yields
// exactly one registry. Under the global strategy every key resolves to the
// same shared registry.
func (s *SessionStore) Resolve(key string) *Registry {
	if s.strategy == StrategyGlobal {
		return s.global
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[key]
	if !ok {
		entry = &sessionEntry{registry: s.newRegistry()}
		s.sessions[key] = entry
		s.logger.Infow("session created", "key", key, "strategy", s.strategy)
	}
	entry.lastAccessed = s.now()
	return entry.registry
}

// Release tears down the registry bound to a caller context. Used by the
// standard strategy when the context ends; a no-op for unknown keys.
func (s *SessionStore) Release(key string) {
	s.mu.Lock()
	entry, ok := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()

	if !ok {
		return
	}
	closed := entry.registry.DisconnectAll()
	s.logger.Infow("session released", "key", key, "connections_closed", closed)
}

// Start launches the background reaper. Only the header strategy evicts on
// idle; for the other strategies Start is a no-op.
func (s *SessionStore) Start(interval time.Duration) {
	if s.strategy != StrategyHeader {
		return
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Reap()
			case <-s.stop:
				return
			}
		}
	}()
	s.logger.Infow("session reaper started", "ttl", s.ttl, "interval", interval)
}

// Stop halts the reaper and closes every remaining session.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.running
		s.running = false
		s.mu.Unlock()

		close(s.stop)
		if running {
			<-s.done
		}

		s.mu.Lock()
		sessions := s.sessions
		s.sessions = make(map[string]*sessionEntry)
		global := s.global
		s.mu.Unlock()

		count := 0
		for key, entry := range sessions {
			count += entry.registry.DisconnectAll()
			s.logger.Infow("session closed on shutdown", "key", key)
		}
		if global != nil {
			count += global.DisconnectAll()
		}
		s.logger.Infow("session store stopped", "connections_closed", count)
	})
}

// Reap evicts sessions idle past the TTL, closing their connections. A
// session counts as active if it was resolved recently or any of its
// connections saw traffic recently.
func (s *SessionStore) Reap() {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for key, entry := range s.sessions {
		if s.idleLocked(entry, now) {
			expired = append(expired, key)
		}
	}
	s.mu.Unlock()

	for _, key := range expired {
		s.mu.Lock()
		entry, ok := s.sessions[key]
		// Re-check under lock: the session may have been touched while
		// the eviction list was being built.
		if ok && s.idleLocked(entry, now) {
			delete(s.sessions, key)
		} else {
			entry = nil
		}
		s.mu.Unlock()

		if entry == nil {
			continue
		}
		closed := entry.registry.DisconnectAll()
		s.logger.Infow("idle session evicted", "key", key, "connections_closed", closed)
	}
}

func (s *SessionStore) idleLocked(entry *sessionEntry, now time.Time) bool {
	last := entry.lastAccessed
	if at := entry.registry.LastActivity(); at.After(last) {
		last = at
	}
	return now.Sub(last) > s.ttl
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
