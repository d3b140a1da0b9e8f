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
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/avasko/sshbridge/internal/core/domain"
	"go.uber.org/zap"
)

// Files exposes the single-connection file primitives the tool layer builds
// on: read, write, list. Reads share the executor's bounded-capture
// discipline so a huge remote file cannot balloon the service, and every
// path is confined to the allowed root before the remote is touched.
type Files struct {
	logger      *zap.SugaredLogger
	maxRead     int
	allowedRoot string
}

// NewFiles creates the file primitives service. maxRead zero selects the
// executor's default output cap; an empty allowedRoot allows the whole
// remote filesystem.
func NewFiles(logger *zap.SugaredLogger, maxRead int, allowedRoot string) *Files {
	if maxRead <= 0 {
		maxRead = DefaultMaxOutput
	}
	if allowedRoot == "" {
		allowedRoot = "/"
	}
	return &Files{logger: logger, maxRead: maxRead, allowedRoot: allowedRoot}
}

// resolveWithinRoot anchors a relative path at the connection's tracked
// working directory, cleans it, and refuses anything that resolves outside
// root. Remote paths are POSIX regardless of the local platform.
func resolveWithinRoot(cwd, p, root string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path: %w", domain.ErrInvalid)
	}
	if !path.IsAbs(p) {
		base := cwd
		// Before the first command reports a pwd the remote working
		// directory is unknown; anchor at the root instead.
		if !path.IsAbs(base) {
			base = root
		}
		p = path.Join(base, p)
	}
	cleaned := path.Clean(p)
	root = path.Clean(root)
	if root != "/" && cleaned != root && !strings.HasPrefix(cleaned, root+"/") {
		return "", fmt.Errorf("path %q resolves outside allowed root %q: %w", cleaned, root, domain.ErrDenied)
	}
	return cleaned, nil
}

// Read returns at most maxRead bytes of the remote file and whether the
// content was cut off.
func (f *Files) Read(ctx context.Context, conn *Connection, path string) (string, bool, error) {
	path, err := resolveWithinRoot(conn.Cwd(), path, f.allowedRoot)
	if err != nil {
		return "", false, err
	}
	if err := conn.Acquire(ctx); err != nil {
		return "", false, err
	}
	defer conn.Release()
	defer conn.Touch()

	reader, err := conn.Transport().OpenRead(path)
	if err != nil {
		return "", false, fmt.Errorf("read %s on %q: %w", path, conn.Alias, err)
	}
	defer reader.Close()

	// Read one byte past the cap to learn whether the file continues.
	data, err := io.ReadAll(io.LimitReader(reader, int64(f.maxRead)+1))
	if err != nil {
		return "", false, fmt.Errorf("read %s on %q: %w", path, conn.Alias, err)
	}
	truncated := len(data) > f.maxRead
	if truncated {
		data = data[:f.maxRead]
	}

	f.logger.Infow("file read", "alias", conn.Alias, "path", path, "bytes", len(data), "truncated", truncated)
	return string(data), truncated, nil
}

// Write stores content at the remote path, creating or truncating it.
func (f *Files) Write(ctx context.Context, conn *Connection, path string, content []byte) error {
	path, err := resolveWithinRoot(conn.Cwd(), path, f.allowedRoot)
	if err != nil {
		return err
	}
	if err := conn.Acquire(ctx); err != nil {
		return err
	}
	defer conn.Release()
	defer conn.Touch()

	writer, err := conn.Transport().OpenWrite(path)
	if err != nil {
		return fmt.Errorf("write %s on %q: %w", path, conn.Alias, err)
	}
	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write %s on %q: %w", path, conn.Alias, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("write %s on %q: %w", path, conn.Alias, err)
	}

	f.logger.Infow("file written", "alias", conn.Alias, "path", path, "bytes", len(content))
	return nil
}

// List returns the entries of a remote directory.
func (f *Files) List(ctx context.Context, conn *Connection, path string) ([]domain.FileInfo, error) {
	path, err := resolveWithinRoot(conn.Cwd(), path, f.allowedRoot)
	if err != nil {
		return nil, err
	}
	if err := conn.Acquire(ctx); err != nil {
		return nil, err
	}
	defer conn.Release()
	defer conn.Touch()

	entries, err := conn.Transport().ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s on %q: %w", path, conn.Alias, err)
	}
	return entries, nil
}
