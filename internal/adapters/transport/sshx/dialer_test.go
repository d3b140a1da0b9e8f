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
	"errors"
	"testing"
	"time"

	"github.com/avasko/sshbridge/internal/core/domain"
	"go.uber.org/zap/zaptest"
)

func TestAuthMethodRequiresCredentials(t *testing.T) {
	d := NewDialer(zaptest.NewLogger(t).Sugar(), nil, 0)

	if _, err := d.authMethod(domain.Auth{}); err == nil {
		t.Fatalf("expected error when no credentials are given")
	}
	if _, err := d.authMethod(domain.Auth{UseIdentity: true}); err == nil {
		t.Fatalf("expected error when identity is requested but not configured")
	}
	if _, err := d.authMethod(domain.Auth{Password: "secret"}); err != nil {
		t.Fatalf("password auth: %v", err)
	}
}

func TestAuthMethodMissingKeyFile(t *testing.T) {
	d := NewDialer(zaptest.NewLogger(t).Sugar(), nil, 0)

	if _, err := d.authMethod(domain.Auth{KeyPath: "/no/such/key"}); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}

func TestDialUnreachableHost(t *testing.T) {
	d := NewDialer(zaptest.NewLogger(t).Sugar(), nil, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 is reserved and closed on any sane test host.
	_, err := d.Dial(ctx, domain.Target{Host: "127.0.0.1", Port: 1, User: "root"}, domain.Auth{Password: "x"}, nil)
	if !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("ssh: unable to authenticate, attempted methods [none password]"), true},
		{errors.New("ssh: handshake failed: ssh: no supported methods remain"), true},
		{errors.New("permission denied (publickey)"), true},
		{errors.New("dial tcp 10.0.0.1:22: i/o timeout"), false},
	}
	for _, tc := range cases {
		if got := isAuthError(tc.err); got != tc.want {
			t.Errorf("isAuthError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
