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
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/avasko/sshbridge/internal/core/ports"
)

// Connection is one authenticated SSH transport bound to an alias. The
// transport handle and the execution lock are exclusively owned by it.
type Connection struct {
	Alias string
	Host  string
	Port  int
	User  string
	// Via is the alias of the jump-host connection this one was tunneled
	// through, empty for direct connections.
	Via string

	transport     ports.Transport
	execLock      chan struct{}
	establishedAt time.Time
	lastActivity  atomic.Int64 // unix nanos
	broken        atomic.Bool

	// cwd tracks the remote working directory so a cd in one command
	// carries into the next on the same connection.
	cwdMu sync.Mutex
	cwd   string
}

func newConnection(alias string, target domain.Target, via string, transport ports.Transport) *Connection {
	c := &Connection{
		Alias:         alias,
		Host:          target.Host,
		Port:          target.Port,
		User:          target.User,
		Via:           via,
		transport:     transport,
		execLock:      make(chan struct{}, 1),
		establishedAt: time.Now(),
	}
	c.Touch()
	return c
}

// Transport returns the underlying transport handle.
func (c *Connection) Transport() ports.Transport { return c.transport }

// Acquire takes the connection's execution lock. Goroutines blocked on a
// channel send are woken in arrival order, which keeps per-connection
// command execution FIFO.
func (c *Connection) Acquire(ctx context.Context) error {
	select {
	case c.execLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the execution lock.
func (c *Connection) Release() { <-c.execLock }

// Touch records activity for idle-eviction accounting.
func (c *Connection) Touch() { c.lastActivity.Store(time.Now().UnixNano()) }

// LastActivity reports when the connection last executed or transferred.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// EstablishedAt reports when the transport was opened.
func (c *Connection) EstablishedAt() time.Time { return c.establishedAt }

// MarkBroken invalidates the connection after a mid-operation transport
// loss. Registry lookups treat broken connections as not found.
func (c *Connection) MarkBroken() { c.broken.Store(true) }

// Broken reports whether the connection has been invalidated.
func (c *Connection) Broken() bool { return c.broken.Load() }

// Cwd returns the tracked remote working directory, "." before the first
// command reports one.
func (c *Connection) Cwd() string {
	c.cwdMu.Lock()
	defer c.cwdMu.Unlock()
	if c.cwd == "" {
		return "."
	}
	return c.cwd
}

// SetCwd updates the tracked working directory.
func (c *Connection) SetCwd(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	c.cwdMu.Lock()
	c.cwd = dir
	c.cwdMu.Unlock()
}

// Close shuts the underlying transport.
func (c *Connection) Close() error { return c.transport.Close() }

func (c *Connection) summary() domain.Summary {
	return domain.Summary{
		Alias:       c.Alias,
		Host:        c.Host,
		Port:        c.Port,
		User:        c.User,
		Via:         c.Via,
		Established: c.establishedAt,
		Idle:        time.Since(c.LastActivity()),
	}
}
