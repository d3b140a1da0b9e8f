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

package config

import (
	"testing"
	"time"

	"github.com/avasko/sshbridge/internal/core/services"
)

// envConfig is a ConfigProvider backed by a map instead of the process
// environment.
type envConfig struct {
	env map[string]string
}

func (c *envConfig) ConfigPath(elems ...string) string {
	path := "/home/test/.sshbridge"
	for _, e := range elems {
		path += "/" + e
	}
	return path
}

func (c *envConfig) LogPath(filename string) string {
	return c.ConfigPath("logs", filename)
}

func (c *envConfig) GetEnvOrDefault(envVar, defaultValue string) string {
	if v, ok := c.env[envVar]; ok && v != "" {
		return v
	}
	return defaultValue
}

func TestLoadSettingsDefaults(t *testing.T) {
	settings := LoadSettings(&envConfig{})

	if settings.Strategy != services.StrategyHeader {
		t.Fatalf("expected header strategy by default, got %q", settings.Strategy)
	}
	if settings.SessionTTL != services.DefaultSessionTTL {
		t.Fatalf("unexpected session ttl %s", settings.SessionTTL)
	}
	if settings.CommandTimeout != services.DefaultCommandTimeout {
		t.Fatalf("unexpected command timeout %s", settings.CommandTimeout)
	}
	if settings.MaxOutput != services.DefaultMaxOutput {
		t.Fatalf("unexpected max output %d", settings.MaxOutput)
	}
	if settings.SessionHeader != "X-Session-Key" {
		t.Fatalf("unexpected session header %q", settings.SessionHeader)
	}
	if settings.IdentityFile != "/home/test/.sshbridge/id_ed25519" {
		t.Fatalf("unexpected identity file %q", settings.IdentityFile)
	}
	if settings.AllowedRoot != "/" {
		t.Fatalf("expected unrestricted root by default, got %q", settings.AllowedRoot)
	}
}

func TestLoadSettingsFromEnvironment(t *testing.T) {
	settings := LoadSettings(&envConfig{env: map[string]string{
		"SSHBRIDGE_SESSION_STRATEGY": "global",
		"SSHBRIDGE_SESSION_TIMEOUT":  "600",
		"SSHBRIDGE_COMMAND_TIMEOUT":  "30",
		"SSHBRIDGE_MAX_OUTPUT":       "1024",
		"SSHBRIDGE_SESSION_HEADER":   "X-Tenant",
		"SSHBRIDGE_IDENTITY_FILE":    "/etc/sshbridge/key",
		"SSHBRIDGE_SSH_CONFIG":       "/etc/sshbridge/ssh_config",
		"SSHBRIDGE_ALLOWED_ROOT":     "/srv/data",
	}})

	if settings.Strategy != services.StrategyGlobal {
		t.Fatalf("expected global strategy, got %q", settings.Strategy)
	}
	if settings.SessionTTL != 600*time.Second {
		t.Fatalf("unexpected session ttl %s", settings.SessionTTL)
	}
	if settings.CommandTimeout != 30*time.Second {
		t.Fatalf("unexpected command timeout %s", settings.CommandTimeout)
	}
	if settings.MaxOutput != 1024 {
		t.Fatalf("unexpected max output %d", settings.MaxOutput)
	}
	if settings.SessionHeader != "X-Tenant" {
		t.Fatalf("unexpected session header %q", settings.SessionHeader)
	}
	if settings.IdentityFile != "/etc/sshbridge/key" {
		t.Fatalf("unexpected identity file %q", settings.IdentityFile)
	}
	if settings.SSHConfig != "/etc/sshbridge/ssh_config" {
		t.Fatalf("unexpected ssh config %q", settings.SSHConfig)
	}
	if settings.AllowedRoot != "/srv/data" {
		t.Fatalf("unexpected allowed root %q", settings.AllowedRoot)
	}
}

func TestLoadSettingsRejectsGarbage(t *testing.T) {
	settings := LoadSettings(&envConfig{env: map[string]string{
		"SSHBRIDGE_SESSION_STRATEGY": "roundrobin",
		"SSHBRIDGE_SESSION_TIMEOUT":  "soon",
		"SSHBRIDGE_MAX_OUTPUT":       "-5",
	}})

	if settings.Strategy != services.StrategyHeader {
		t.Fatalf("invalid strategy should fall back to header, got %q", settings.Strategy)
	}
	if settings.SessionTTL != services.DefaultSessionTTL {
		t.Fatalf("invalid ttl should fall back to default, got %s", settings.SessionTTL)
	}
	if settings.MaxOutput != services.DefaultMaxOutput {
		t.Fatalf("invalid max output should fall back to default, got %d", settings.MaxOutput)
	}
}
