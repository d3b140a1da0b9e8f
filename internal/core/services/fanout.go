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
	"sync"
)

// Outcome is one target's result from a fleet operation: either Value or
// Err is set, never both.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Bulk applies op to every alias concurrently and collects a per-alias
// outcome. One target's failure never cancels or blocks the others, and the
// aggregate call succeeds even when every target failed; callers inspect
// the map. There is no implicit retry.
func Bulk[T any](ctx context.Context, aliases []string, op func(ctx context.Context, alias string) (T, error)) map[string]Outcome[T] {
	results := make(map[string]Outcome[T], len(aliases))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	seen := make(map[string]struct{}, len(aliases))
	for _, alias := range aliases {
		if _, dup := seen[alias]; dup {
			continue
		}
		seen[alias] = struct{}{}

		wg.Add(1)
		go func(alias string) {
			defer wg.Done()
			value, err := op(ctx, alias)
			mu.Lock()
			results[alias] = Outcome[T]{Value: value, Err: err}
			mu.Unlock()
		}(alias)
	}
	wg.Wait()

	return results
}
