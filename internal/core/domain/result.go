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

import "time"

// ExecResult is the outcome of one remote command execution.
type ExecResult struct {
	Alias      string
	Command    string
	ExitStatus int
	Stdout     string
	Stderr     string
	// Truncated is set when combined output exceeded the configured cap.
	// It is a flag on success, not an error.
	Truncated bool
	Elapsed   time.Duration
	// Cwd is the remote working directory after the command ran.
	Cwd string
}

// SyncResult is the outcome of one node-to-node bridge transfer.
type SyncResult struct {
	SourceAlias string
	SourcePath  string
	DestAlias   string
	DestPath    string
	Bytes       int64
}

// FileInfo describes one remote directory entry.
type FileInfo struct {
	Name  string
	Size  int64
	Mode  string
	IsDir bool
}
