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
	"sort"

	"github.com/avasko/sshbridge/internal/core/domain"
	"go.uber.org/zap"
)

// bridgeChunkSize is the relay buffer: the service holds at most one chunk
// of the file in memory at a time.
const bridgeChunkSize = 64 * 1024

// Bridge streams file content between two connections, with the service as
// the only required network path between them.
//
// A failed transfer may leave a truncated file on the destination; partial
// writes are reported, not rolled back.
type Bridge struct {
	logger      *zap.SugaredLogger
	allowedRoot string
}

// NewBridge creates a bridge engine. An empty allowedRoot allows the whole
// remote filesystem on both endpoints.
func NewBridge(logger *zap.SugaredLogger, allowedRoot string) *Bridge {
	if allowedRoot == "" {
		allowedRoot = "/"
	}
	return &Bridge{logger: logger, allowedRoot: allowedRoot}
}

// Sync relays srcPath on srcAlias to destPath on destAlias in fixed-size
// chunks. On failure the returned error wraps domain.ErrTransfer and the
// result carries the bytes already written to the destination.
func (b *Bridge) Sync(ctx context.Context, registry *Registry, srcAlias, srcPath, destAlias, destPath string) (domain.SyncResult, error) {
	result := domain.SyncResult{
		SourceAlias: srcAlias,
		SourcePath:  srcPath,
		DestAlias:   destAlias,
		DestPath:    destPath,
	}

	src, err := registry.Get(srcAlias)
	if err != nil {
		return result, err
	}
	dest, err := registry.Get(destAlias)
	if err != nil {
		return result, err
	}

	// Both endpoints are confined before any lock or stream is opened.
	srcPath, err = resolveWithinRoot(src.Cwd(), srcPath, b.allowedRoot)
	if err != nil {
		return result, err
	}
	destPath, err = resolveWithinRoot(dest.Cwd(), destPath, b.allowedRoot)
	if err != nil {
		return result, err
	}

	// Both execution locks are taken in sorted alias order so two
	// crossing transfers cannot deadlock.
	locks := []*Connection{src}
	if dest != src {
		locks = append(locks, dest)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Alias < locks[j].Alias })
	for _, conn := range locks {
		if err := conn.Acquire(ctx); err != nil {
			for _, held := range locks {
				if held == conn {
					break
				}
				held.Release()
			}
			return result, err
		}
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Release()
		}
		src.Touch()
		dest.Touch()
	}()

	b.logger.Infow("sync start",
		"source", srcAlias, "source_path", srcPath,
		"dest", destAlias, "dest_path", destPath)

	reader, err := src.Transport().OpenRead(srcPath)
	if err != nil {
		return result, fmt.Errorf("open %s on %q: %w: %v", srcPath, srcAlias, domain.ErrTransfer, err)
	}
	defer reader.Close()

	writer, err := dest.Transport().OpenWrite(destPath)
	if err != nil {
		return result, fmt.Errorf("open %s on %q: %w: %v", destPath, destAlias, domain.ErrTransfer, err)
	}

	buf := make([]byte, bridgeChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = writer.Close()
			return result, fmt.Errorf("%w after %d bytes: %v", domain.ErrTransfer, result.Bytes, err)
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			written, writeErr := writer.Write(buf[:n])
			result.Bytes += int64(written)
			if writeErr != nil {
				_ = writer.Close()
				b.logger.Errorw("sync write failed", "dest", destAlias, "bytes", result.Bytes, "error", writeErr)
				return result, fmt.Errorf("%w after %d bytes: %v", domain.ErrTransfer, result.Bytes, writeErr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = writer.Close()
			b.logger.Errorw("sync read failed", "source", srcAlias, "bytes", result.Bytes, "error", readErr)
			return result, fmt.Errorf("%w after %d bytes: %v", domain.ErrTransfer, result.Bytes, readErr)
		}
	}

	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("%w after %d bytes: %v", domain.ErrTransfer, result.Bytes, err)
	}

	b.logger.Infow("sync complete", "source", srcAlias, "dest", destAlias, "bytes", result.Bytes)
	return result, nil
}
