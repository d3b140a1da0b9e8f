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
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avasko/sshbridge/internal/core/ports"
	"github.com/avasko/sshbridge/internal/core/services"
)

type OSConfig struct {
	homeDir string
}

func NewOSConfig() ports.ConfigProvider {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	return &OSConfig{homeDir: home}
}

func (c *OSConfig) HomeDir() string {
	return c.homeDir
}

func (c *OSConfig) ConfigPath(elems ...string) string {
	return filepath.Join(c.HomeDir(), ".sshbridge", filepath.Join(elems...))
}

func (c *OSConfig) LogPath(filename string) string {
	return c.ConfigPath("logs", filename)
}

func (c *OSConfig) GetEnvOrDefault(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	return defaultValue
}

// Settings is the value surface the core reads at startup.
type Settings struct {
	// Strategy selects session addressing; fixed for the process lifetime.
	Strategy services.Strategy
	// SessionTTL is the idle timeout for header-keyed sessions.
	SessionTTL time.Duration
	// CommandTimeout is the default execution budget per command.
	CommandTimeout time.Duration
	// MaxOutput caps captured stdout+stderr per command, in bytes.
	MaxOutput int
	// SessionHeader names the header carrying the session key.
	SessionHeader string
	// IdentityFile is where the managed keypair is persisted.
	IdentityFile string
	// SSHConfig is the ssh_config file consulted to complete connect
	// targets named by alias alone.
	SSHConfig string
	// AllowedRoot confines file reads, writes, listings and bridge
	// transfers to one remote directory tree. "/" allows everything.
	AllowedRoot string
}

// LoadSettings reads the configuration surface from the environment,
// falling back to defaults for anything unset or unparseable.
func LoadSettings(p ports.ConfigProvider) Settings {
	return Settings{
		Strategy:       parseStrategy(p.GetEnvOrDefault("SSHBRIDGE_SESSION_STRATEGY", string(services.StrategyHeader))),
		SessionTTL:     envSeconds(p, "SSHBRIDGE_SESSION_TIMEOUT", services.DefaultSessionTTL),
		CommandTimeout: envSeconds(p, "SSHBRIDGE_COMMAND_TIMEOUT", services.DefaultCommandTimeout),
		MaxOutput:      envInt(p, "SSHBRIDGE_MAX_OUTPUT", services.DefaultMaxOutput),
		SessionHeader:  p.GetEnvOrDefault("SSHBRIDGE_SESSION_HEADER", "X-Session-Key"),
		IdentityFile:   p.GetEnvOrDefault("SSHBRIDGE_IDENTITY_FILE", p.ConfigPath("id_ed25519")),
		SSHConfig:      p.GetEnvOrDefault("SSHBRIDGE_SSH_CONFIG", ""),
		AllowedRoot:    p.GetEnvOrDefault("SSHBRIDGE_ALLOWED_ROOT", "/"),
	}
}

func parseStrategy(value string) services.Strategy {
	switch services.Strategy(value) {
	case services.StrategyStandard, services.StrategyHeader, services.StrategyGlobal:
		return services.Strategy(value)
	default:
		return services.StrategyHeader
	}
}

func envSeconds(p ports.ConfigProvider, envVar string, fallback time.Duration) time.Duration {
	raw := p.GetEnvOrDefault(envVar, "")
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func envInt(p ports.ConfigProvider, envVar string, fallback int) int {
	raw := p.GetEnvOrDefault(envVar, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
