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

import (
	"fmt"
	"time"
)

// DefaultAlias is used when a caller does not name the connection.
const DefaultAlias = "primary"

// Auth describes how a connection authenticates. Exactly one of the three
// methods may be set; UseIdentity selects the managed process keypair.
type Auth struct {
	Password    string
	KeyPath     string
	UseIdentity bool
}

// Validate rejects descriptors that combine authentication methods.
func (a Auth) Validate() error {
	set := 0
	if a.Password != "" {
		set++
	}
	if a.KeyPath != "" {
		set++
	}
	if a.UseIdentity {
		set++
	}
	if set > 1 {
		return fmt.Errorf("auth methods are mutually exclusive, got %d: %w", set, ErrInvalid)
	}
	return nil
}

// Target identifies the remote endpoint of a connect call.
type Target struct {
	Host string
	Port int
	User string
}

// Addr renders the host:port dial address.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

// Summary is the caller-facing view of one live connection.
type Summary struct {
	Alias       string
	Host        string
	Port        int
	User        string
	Via         string
	Established time.Time
	Idle        time.Duration
}
