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

package domain

import "errors"

// Error taxonomy for the connection core. Callers classify failures with
// errors.Is; wrapped detail is preserved for logging.
var (
	// ErrAuth means the remote side rejected the supplied credentials.
	// Never retried automatically.
	ErrAuth = errors.New("authentication rejected")

	// ErrUnreachable means the network dial or SSH handshake failed.
	ErrUnreachable = errors.New("host unreachable")

	// ErrConflict means the alias is already bound to a live connection.
	// The existing connection is left untouched.
	ErrConflict = errors.New("alias already in use")

	// ErrNotFound means the alias is unknown, or its connection was
	// evicted or invalidated and needs a reconnect.
	ErrNotFound = errors.New("connection not found")

	// ErrTimeout means a command exceeded its execution budget. The
	// connection remains usable for subsequent commands.
	ErrTimeout = errors.New("command timed out")

	// ErrTransport means the connection dropped mid-operation. The
	// connection is invalidated and must be re-established.
	ErrTransport = errors.New("transport failure")

	// ErrTransfer means a bridge transfer aborted mid-stream. The
	// destination may hold a truncated file; this is caller-visible.
	ErrTransfer = errors.New("transfer aborted")

	// ErrInvalid means the request itself was malformed: missing host,
	// conflicting auth methods, a cyclic jump chain.
	ErrInvalid = errors.New("invalid request")

	// ErrDenied means a file path resolved outside the configured
	// allowed root. The operation is refused before touching the remote.
	ErrDenied = errors.New("path access denied")
)
