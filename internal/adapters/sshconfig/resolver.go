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

package sshconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/kevinburke/ssh_config"
	"go.uber.org/zap"
)

// Resolver completes connect targets from the operator's ssh_config. The
// file is re-read per lookup so edits take effect without a restart; it is
// never written.
type Resolver struct {
	logger     *zap.SugaredLogger
	configPath string
}

// NewResolver creates a resolver for the given ssh_config path. An empty
// path selects ~/.ssh/config.
func NewResolver(logger *zap.SugaredLogger, configPath string) *Resolver {
	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".ssh", "config")
		}
	}
	return &Resolver{logger: logger, configPath: configPath}
}

// Lookup returns the host, port, user and identity file configured for
// alias. A missing or unreadable config file is not an error, just a miss.
func (r *Resolver) Lookup(alias string) (domain.Target, string, bool) {
	file, err := os.Open(r.configPath)
	if err != nil {
		return domain.Target{}, "", false
	}
	defer file.Close()

	cfg, err := ssh_config.Decode(file)
	if err != nil {
		r.logger.Warnw("unparseable ssh config", "path", r.configPath, "error", err)
		return domain.Target{}, "", false
	}

	hostName, _ := cfg.Get(alias, "HostName")
	user, _ := cfg.Get(alias, "User")
	portRaw, _ := cfg.Get(alias, "Port")
	keyPath, _ := cfg.Get(alias, "IdentityFile")

	if hostName == "" && user == "" && portRaw == "" && keyPath == "" {
		return domain.Target{}, "", false
	}
	if hostName == "" {
		hostName = alias
	}

	port := 0
	if portRaw != "" {
		if parsed, err := strconv.Atoi(portRaw); err == nil && parsed > 0 {
			port = parsed
		}
	}

	return domain.Target{Host: hostName, Port: port, User: user}, expandHome(keyPath), true
}

// expandHome resolves the leading ~ ssh_config allows in IdentityFile.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
