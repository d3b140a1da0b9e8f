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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/avasko/sshbridge/internal/core/ports"
	"go.uber.org/zap"
)

// ConnectParams describes one connect call.
type ConnectParams struct {
	Alias  string
	Target domain.Target
	Auth   domain.Auth
	// Via names an already-registered connection to tunnel through.
	Via string
}

// Registry owns the alias -> Connection mapping for one session. All methods
// are safe for concurrent use.
type Registry struct {
	logger   *zap.SugaredLogger
	dialer   ports.Dialer
	identity ports.Identity
	resolver ports.TargetResolver

	mu       sync.RWMutex
	conns    map[string]*Connection
	reserved map[string]struct{}
	primary  string
}

// NewRegistry creates an empty connection registry. identity and resolver
// may be nil when the managed keypair or ssh_config lookup is not
// configured.
func NewRegistry(logger *zap.SugaredLogger, dialer ports.Dialer, identity ports.Identity, resolver ports.TargetResolver) *Registry {
	return &Registry{
		logger:   logger,
		dialer:   dialer,
		identity: identity,
		resolver: resolver,
		conns:    make(map[string]*Connection),
		reserved: make(map[string]struct{}),
	}
}

// Connect establishes a new aliased connection. The alias must be free; a
// live connection is never implicitly replaced. When Via is set the new
// transport is tunneled through that connection, never dialed directly.
func (r *Registry) Connect(ctx context.Context, params ConnectParams) (*Connection, error) {
	alias := strings.TrimSpace(params.Alias)
	if alias == "" {
		alias = domain.DefaultAlias
	}
	if err := params.Auth.Validate(); err != nil {
		return nil, err
	}

	target := params.Target
	auth := params.Auth

	// A connect call naming only an alias is completed from ssh_config.
	if strings.TrimSpace(target.Host) == "" && r.resolver != nil {
		if resolved, keyPath, ok := r.resolver.Lookup(alias); ok {
			target.Host = resolved.Host
			if target.Port == 0 {
				target.Port = resolved.Port
			}
			if target.User == "" {
				target.User = resolved.User
			}
			if auth.Password == "" && auth.KeyPath == "" && !auth.UseIdentity && keyPath != "" {
				auth.KeyPath = keyPath
			}
			r.logger.Infow("target resolved from ssh config", "alias", alias, "host", target.Host)
		}
	}
	if strings.TrimSpace(target.Host) == "" {
		return nil, fmt.Errorf("host is required: %w", domain.ErrInvalid)
	}

	// Fall back to the managed identity when no credentials were given.
	if auth.Password == "" && auth.KeyPath == "" && !auth.UseIdentity && r.identity != nil && r.identity.Exists() {
		auth.UseIdentity = true
		r.logger.Infow("using managed identity for auth", "alias", alias)
	}

	via, err := r.reserve(alias, params.Via)
	if err != nil {
		return nil, err
	}

	var viaTransport ports.Transport
	if via != nil {
		viaTransport = via.Transport()
	}

	transport, err := r.dialer.Dial(ctx, target, auth, viaTransport)
	if err != nil {
		r.unreserve(alias)
		r.logger.Warnw("connect failed", "alias", alias, "host", target.Host, "error", err)
		return nil, err
	}

	conn := newConnection(alias, target, params.Via, transport)

	r.mu.Lock()
	delete(r.reserved, alias)
	r.conns[alias] = conn
	if r.primary == "" || alias == domain.DefaultAlias {
		r.primary = alias
	}
	r.mu.Unlock()

	r.logger.Infow("connected", "alias", alias, "host", target.Host, "via", params.Via)
	return conn, nil
}

// reserve claims the alias and resolves the jump host, holding the lock only
// briefly so an in-flight dial never blocks other registry calls.
func (r *Registry) reserve(alias, via string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[alias]; exists {
		return nil, fmt.Errorf("alias %q: %w", alias, domain.ErrConflict)
	}
	if _, pending := r.reserved[alias]; pending {
		return nil, fmt.Errorf("alias %q has a connect in flight: %w", alias, domain.ErrConflict)
	}

	var viaConn *Connection
	if via != "" {
		if via == alias {
			return nil, fmt.Errorf("via %q refers to itself: %w", via, domain.ErrNotFound)
		}
		c, ok := r.conns[via]
		if !ok || c.Broken() {
			return nil, fmt.Errorf("jump host %q: %w", via, domain.ErrNotFound)
		}
		if err := r.checkChain(via); err != nil {
			return nil, err
		}
		viaConn = c
	}

	r.reserved[alias] = struct{}{}
	return viaConn, nil
}

func (r *Registry) unreserve(alias string) {
	r.mu.Lock()
	delete(r.reserved, alias)
	r.mu.Unlock()
}

// checkChain walks the via references from start and rejects cycles. Called
// with r.mu held.
func (r *Registry) checkChain(start string) error {
	seen := map[string]struct{}{}
	for alias := start; alias != ""; {
		if _, dup := seen[alias]; dup {
			return fmt.Errorf("jump chain through %q is cyclic: %w", start, domain.ErrInvalid)
		}
		seen[alias] = struct{}{}
		c, ok := r.conns[alias]
		if !ok {
			return fmt.Errorf("jump host %q: %w", alias, domain.ErrNotFound)
		}
		alias = c.Via
	}
	return nil
}

// Get returns the connection for alias. Broken connections are reported as
// not found so callers reconnect instead of reusing a dead transport.
func (r *Registry) Get(alias string) (*Connection, error) {
	r.mu.RLock()
	conn, ok := r.conns[alias]
	r.mu.RUnlock()
	if !ok || conn.Broken() {
		return nil, fmt.Errorf("alias %q: %w", alias, domain.ErrNotFound)
	}
	return conn, nil
}

// Resolve returns the connection for alias, or the primary connection when
// alias is empty.
func (r *Registry) Resolve(alias string) (*Connection, error) {
	if alias != "" {
		return r.Get(alias)
	}
	r.mu.RLock()
	primary := r.primary
	r.mu.RUnlock()
	if primary == "" {
		return nil, fmt.Errorf("no primary connection: %w", domain.ErrNotFound)
	}
	return r.Get(primary)
}

// Disconnect closes and removes one connection. Closing is best effort: the
// entry is removed even if the transport close fails.
func (r *Registry) Disconnect(alias string) error {
	r.mu.Lock()
	conn, ok := r.conns[alias]
	if ok {
		delete(r.conns, alias)
		if r.primary == alias {
			r.primary = r.anyAliasLocked()
		}
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("alias %q: %w", alias, domain.ErrNotFound)
	}
	if err := conn.Close(); err != nil {
		r.logger.Warnw("close failed", "alias", alias, "error", err)
	}
	r.logger.Infow("disconnected", "alias", alias)
	return nil
}

// DisconnectAll closes every connection, tolerating individual close
// failures, and returns the number of connections that were removed.
func (r *Registry) DisconnectAll() int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Connection)
	r.primary = ""
	r.mu.Unlock()

	for alias, conn := range conns {
		if err := conn.Close(); err != nil {
			r.logger.Warnw("close failed", "alias", alias, "error", err)
		}
	}
	return len(conns)
}

// anyAliasLocked picks a replacement primary after the current one is
// removed. Called with r.mu held.
func (r *Registry) anyAliasLocked() string {
	for alias := range r.conns {
		return alias
	}
	return ""
}

// List returns a summary per live connection, sorted by alias.
func (r *Registry) List() []domain.Summary {
	r.mu.RLock()
	summaries := make([]domain.Summary, 0, len(r.conns))
	for _, conn := range r.conns {
		summaries = append(summaries, conn.summary())
	}
	r.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Alias < summaries[j].Alias })
	return summaries
}

// LastActivity reports the most recent activity across all connections,
// zero when the registry is empty. The session reaper reads this.
func (r *Registry) LastActivity() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest time.Time
	for _, conn := range r.conns {
		if at := conn.LastActivity(); at.After(latest) {
			latest = at
		}
	}
	return latest
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
