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

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// keyComment tags the generated public key in authorized_keys listings.
const keyComment = "sshbridge"

// Manager owns the process-wide Ed25519 keypair: generated once, persisted
// next to the configuration, reused across restarts. Connect calls with no
// explicit credentials authenticate with it.
type Manager struct {
	logger  *zap.SugaredLogger
	keyPath string
}

// NewManager creates an identity manager for the given private key path.
// The public key lives alongside it with a .pub suffix.
func NewManager(logger *zap.SugaredLogger, keyPath string) *Manager {
	return &Manager{logger: logger, keyPath: keyPath}
}

// Ensure generates and persists the keypair if it does not exist yet.
func (m *Manager) Ensure() error {
	if m.Exists() {
		return nil
	}

	dir := filepath.Dir(m.keyPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key directory %s: %w", dir, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, keyComment)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(m.keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write private key %s: %w", m.keyPath, err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + keyComment + "\n"
	if err := os.WriteFile(m.pubPath(), []byte(line), 0o644); err != nil {
		return fmt.Errorf("write public key %s: %w", m.pubPath(), err)
	}

	m.logger.Infow("generated managed identity", "path", m.keyPath)
	return nil
}

// Exists reports whether the private key has been generated.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.keyPath)
	return err == nil
}

// PublicKey returns the authorized_keys line callers install on targets.
func (m *Manager) PublicKey() (string, error) {
	data, err := os.ReadFile(m.pubPath())
	if err != nil {
		return "", fmt.Errorf("read public key %s: %w", m.pubPath(), err)
	}
	return strings.TrimSpace(string(data)), nil
}

// PrivateKeyPEM returns the persisted private key.
func (m *Manager) PrivateKeyPEM() ([]byte, error) {
	data, err := os.ReadFile(m.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", m.keyPath, err)
	}
	return data, nil
}

func (m *Manager) pubPath() string {
	return m.keyPath + ".pub"
}
