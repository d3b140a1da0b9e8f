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

package ports

import (
	"context"
	"io"
	"net"

	"github.com/avasko/sshbridge/internal/core/domain"
)

// Transport is one authenticated SSH session as the core consumes it: run a
// command, open file streams, tunnel a TCP connection, close. Implemented by
// the sshx adapter; the core never touches the wire protocol.
type Transport interface {
	// Exec runs command remotely, streaming output into stdout/stderr
	// until the writers stop accepting or the context ends. It returns
	// the remote exit status. A non-zero exit is not an error; transport
	// loss is.
	Exec(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)

	// OpenRead opens a remote file for reading.
	OpenRead(path string) (io.ReadCloser, error)

	// OpenWrite opens (creating or truncating) a remote file for writing.
	OpenWrite(path string) (io.WriteCloser, error)

	// ReadDir lists a remote directory.
	ReadDir(path string) ([]domain.FileInfo, error)

	// DialTCP opens a TCP connection from the remote side, used to chain
	// another SSH connection through this one.
	DialTCP(ctx context.Context, addr string) (net.Conn, error)

	// Close tears the session down.
	Close() error
}

// Dialer opens authenticated transports. Via, when non-nil, is an existing
// transport the new one must be tunneled through; the dialer never opens a
// direct route when a via is given.
type Dialer interface {
	Dial(ctx context.Context, target domain.Target, auth domain.Auth, via Transport) (Transport, error)
}

// Identity is the managed process keypair used when a connect call supplies
// no explicit credentials.
type Identity interface {
	// PublicKey returns the authorized_keys line for remote installation.
	PublicKey() (string, error)

	// PrivateKeyPEM returns the PEM-encoded private key for signing.
	PrivateKeyPEM() ([]byte, error)

	// Exists reports whether the keypair has been generated.
	Exists() bool
}

// TargetResolver supplies endpoint defaults for an alias, typically from
// the operator's ssh_config. A connect call that names only an alias is
// completed from the resolved entry.
type TargetResolver interface {
	// Lookup returns the target defaults and private key path configured
	// for alias. ok is false when no entry matches.
	Lookup(alias string) (target domain.Target, keyPath string, ok bool)
}

// ConfigProvider supplies process-level paths and environment lookups.
type ConfigProvider interface {
	ConfigPath(elems ...string) string
	LogPath(filename string) string
	GetEnvOrDefault(envVar, defaultValue string) string
}
