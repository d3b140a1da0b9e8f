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
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avasko/sshbridge/internal/core/domain"
	"go.uber.org/zap"
)

// DefaultCommandTimeout bounds a remote command when the caller gives none.
const DefaultCommandTimeout = 120 * time.Second

// DefaultMaxOutput caps combined captured stdout+stderr per command.
const DefaultMaxOutput = 50 * 1024

// cwdDelimiter separates command output from the trailing pwd capture.
const cwdDelimiter = "___SSHBRIDGE_CWD___"

// cwdCaptureReserve is extra capture headroom for the delimiter and pwd
// line the command wrapper appends, so the capture is never charged against
// the caller's output cap. 4096 covers PATH_MAX plus newlines.
const cwdCaptureReserve = len(cwdDelimiter) + 4100

// Executor runs commands on connections with per-connection FIFO
// serialization, a timeout budget, and bounded output capture.
type Executor struct {
	logger         *zap.SugaredLogger
	defaultTimeout time.Duration
	maxOutput      int
}

// NewExecutor creates an executor. Zero values select the defaults.
func NewExecutor(logger *zap.SugaredLogger, defaultTimeout time.Duration, maxOutput int) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &Executor{
		logger:         logger,
		defaultTimeout: defaultTimeout,
		maxOutput:      maxOutput,
	}
}

// Execute runs command on conn. Commands on one connection run strictly
// sequentially in submission order; the command executes in the
// connection's tracked working directory and the directory it leaves behind
// is captured for the next call.
func (e *Executor) Execute(ctx context.Context, conn *Connection, command string, timeout time.Duration) (domain.ExecResult, error) {
	result := domain.ExecResult{Alias: conn.Alias, Command: command}

	if conn.Broken() {
		return result, fmt.Errorf("alias %q: %w", conn.Alias, domain.ErrNotFound)
	}
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	if err := conn.Acquire(ctx); err != nil {
		return result, err
	}
	defer conn.Release()
	defer conn.Touch()

	cwd := conn.Cwd()
	wrapped := fmt.Sprintf(
		`cd %s && ( %s ); __rc=$?; echo %s; pwd; exit $__rc`,
		shellQuote(cwd), command, cwdDelimiter,
	)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	budget := newOutputBudget(e.maxOutput + cwdCaptureReserve)
	stdout := budget.writer()
	stderr := budget.writer()

	e.logger.Infow("executing command", "alias", conn.Alias, "command", command)
	start := time.Now()
	exit, err := conn.Transport().Exec(execCtx, wrapped, stdout, stderr)
	result.Elapsed = time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			// The remote command overran its budget; the transport
			// session was torn down but the connection survives.
			e.logger.Errorw("command timed out", "alias", conn.Alias, "command", command, "timeout", timeout)
			return result, fmt.Errorf("after %s: %w", timeout, domain.ErrTimeout)
		case errors.Is(err, context.Canceled):
			return result, err
		default:
			conn.MarkBroken()
			e.logger.Errorw("transport failed mid-command", "alias", conn.Alias, "error", err)
			return result, fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
	}

	stdoutText, cwdAfter := splitCwdCapture(stdout.String())
	if cwdAfter != "" {
		conn.SetCwd(cwdAfter)
	}

	// The cap applies to what the caller sees, after the capture is
	// stripped; the reserve only existed to keep the capture intact.
	stderrText := stderr.String()
	truncated := budget.truncated()
	if len(stdoutText)+len(stderrText) > e.maxOutput {
		truncated = true
		if len(stdoutText) > e.maxOutput {
			stdoutText = stdoutText[:e.maxOutput]
		}
		if rem := e.maxOutput - len(stdoutText); len(stderrText) > rem {
			stderrText = stderrText[:rem]
		}
	}

	result.ExitStatus = exit
	result.Stdout = stdoutText
	result.Stderr = stderrText
	result.Truncated = truncated
	result.Cwd = conn.Cwd()
	return result, nil
}

// splitCwdCapture strips the trailing pwd capture from stdout and returns
// the clean output plus the reported working directory.
func splitCwdCapture(stdout string) (string, string) {
	idx := strings.Index(stdout, cwdDelimiter)
	if idx < 0 {
		return stdout, ""
	}
	clean := stdout[:idx]
	rest := strings.TrimSpace(stdout[idx+len(cwdDelimiter):])
	// The capture may itself have been cut off by the output cap.
	if line, _, found := strings.Cut(rest, "\n"); found {
		rest = line
	}
	return clean, strings.TrimSpace(rest)
}

// shellQuote wraps a value in single quotes with POSIX escaping.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// outputBudget is a shared byte budget across a command's stdout and stderr
// streams. Writes past the budget are counted but not stored, and flip the
// truncated flag instead of failing the command.
type outputBudget struct {
	mu        sync.Mutex
	remaining int
	clipped   bool
}

func newOutputBudget(limit int) *outputBudget {
	return &outputBudget{remaining: limit}
}

func (b *outputBudget) writer() *boundedBuffer {
	return &boundedBuffer{budget: b}
}

func (b *outputBudget) take(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= b.remaining {
		b.remaining -= n
		return n
	}
	granted := b.remaining
	b.remaining = 0
	b.clipped = true
	return granted
}

func (b *outputBudget) truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clipped
}

// boundedBuffer accumulates one stream against the shared budget.
type boundedBuffer struct {
	budget *outputBudget
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *boundedBuffer) Write(p []byte) (int, error) {
	if granted := w.budget.take(len(p)); granted > 0 {
		w.mu.Lock()
		w.buf.Write(p[:granted])
		w.mu.Unlock()
	}
	// Report everything as written so the remote command keeps draining.
	return len(p), nil
}

func (w *boundedBuffer) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
