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

package sshx

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/avasko/sshbridge/internal/core/ports"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// defaultDialTimeout bounds the TCP dial plus SSH handshake.
const defaultDialTimeout = 10 * time.Second

// Dialer opens authenticated SSH transports, directly or tunneled through
// an existing transport for jump-host chains.
type Dialer struct {
	logger      *zap.SugaredLogger
	identity    ports.Identity
	dialTimeout time.Duration
}

// NewDialer creates an SSH dialer. identity may be nil when no managed
// keypair is configured.
func NewDialer(logger *zap.SugaredLogger, identity ports.Identity, dialTimeout time.Duration) *Dialer {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &Dialer{logger: logger, identity: identity, dialTimeout: dialTimeout}
}

// Dial opens an authenticated transport to target. When via is non-nil the
// TCP leg is opened from the via transport's remote side, so the service
// never needs a direct route to the target.
func (d *Dialer) Dial(ctx context.Context, target domain.Target, auth domain.Auth, via ports.Transport) (ports.Transport, error) {
	method, err := d.authMethod(auth)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User: target.User,
		Auth: []ssh.AuthMethod{method},
		// Host keys are accepted as presented; targets are registered
		// by operators, not discovered.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.dialTimeout,
	}

	addr := target.Addr()
	var raw net.Conn
	if via != nil {
		raw, err = via.DialTCP(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("tunnel to %s: %w: %v", addr, domain.ErrUnreachable, err)
		}
	} else {
		dialer := net.Dialer{Timeout: d.dialTimeout}
		raw, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w: %v", addr, domain.ErrUnreachable, err)
		}
	}

	conn, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if err != nil {
		_ = raw.Close()
		if isAuthError(err) {
			return nil, fmt.Errorf("handshake with %s: %w: %v", addr, domain.ErrAuth, err)
		}
		return nil, fmt.Errorf("handshake with %s: %w: %v", addr, domain.ErrUnreachable, err)
	}

	d.logger.Infow("transport established", "addr", addr, "user", target.User, "tunneled", via != nil)
	return newTransport(ssh.NewClient(conn, chans, reqs)), nil
}

// authMethod maps the auth descriptor to an ssh.AuthMethod.
func (d *Dialer) authMethod(auth domain.Auth) (ssh.AuthMethod, error) {
	switch {
	case auth.Password != "":
		return ssh.Password(auth.Password), nil

	case auth.KeyPath != "":
		key, err := os.ReadFile(auth.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", auth.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", auth.KeyPath, err)
		}
		return ssh.PublicKeys(signer), nil

	case auth.UseIdentity:
		if d.identity == nil {
			return nil, fmt.Errorf("managed identity requested but not configured")
		}
		pem, err := d.identity.PrivateKeyPEM()
		if err != nil {
			return nil, fmt.Errorf("load managed identity: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse managed identity: %w", err)
		}
		return ssh.PublicKeys(signer), nil

	default:
		return nil, fmt.Errorf("no authentication method supplied")
	}
}

// isAuthError distinguishes credential rejection from network failure in
// the handshake error text.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	return strings.Contains(text, "unable to authenticate") ||
		strings.Contains(text, "no supported methods remain") ||
		strings.Contains(text, "permission denied")
}
