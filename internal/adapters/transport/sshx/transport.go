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
	"fmt"
	"io"
	"net"

	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// transport wraps one *ssh.Client behind the core's Transport port.
type transport struct {
	client *ssh.Client
}

func newTransport(client *ssh.Client) *transport {
	return &transport{client: client}
}

// Exec runs command in a fresh session, streaming output into the given
// writers. It returns the remote exit status; a non-zero exit is not an
// error. On context expiry the remote command is killed best-effort and the
// context error is returned.
func (t *transport) Exec(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return 0, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Start(command); err != nil {
		return 0, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		//nolint:errcheck // best-effort kill on timeout or cancellation
		_ = session.Signal(ssh.SIGKILL)
		return 0, ctx.Err()

	case err := <-done:
		if err == nil {
			return 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitStatus(), nil
		}
		return 0, fmt.Errorf("wait: %w", err)
	}
}

// OpenRead opens a remote file for reading over a per-call SFTP channel.
func (t *transport) OpenRead(path string) (io.ReadCloser, error) {
	client, err := sftp.NewClient(t.client)
	if err != nil {
		return nil, fmt.Errorf("sftp: %w", err)
	}
	file, err := client.Open(path)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &sftpStream{file: file, client: client}, nil
}

// OpenWrite opens a remote file for writing, creating or truncating it.
func (t *transport) OpenWrite(path string) (io.WriteCloser, error) {
	client, err := sftp.NewClient(t.client)
	if err != nil {
		return nil, fmt.Errorf("sftp: %w", err)
	}
	file, err := client.Create(path)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &sftpStream{file: file, client: client}, nil
}

// ReadDir lists a remote directory over a per-call SFTP channel.
func (t *transport) ReadDir(path string) ([]domain.FileInfo, error) {
	client, err := sftp.NewClient(t.client)
	if err != nil {
		return nil, fmt.Errorf("sftp: %w", err)
	}
	defer client.Close()

	entries, err := client.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", path, err)
	}

	infos := make([]domain.FileInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, domain.FileInfo{
			Name:  entry.Name(),
			Size:  entry.Size(),
			Mode:  entry.Mode().String(),
			IsDir: entry.IsDir(),
		})
	}
	return infos, nil
}

// DialTCP opens a TCP connection from the remote host, used to tunnel the
// next hop of a jump chain.
func (t *transport) DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	return t.client.DialContext(ctx, "tcp", addr)
}

// Close tears down the SSH client and every channel on it.
func (t *transport) Close() error {
	return t.client.Close()
}

// sftpStream couples a remote file with the SFTP channel it rode in on, so
// closing the stream releases both.
type sftpStream struct {
	file   *sftp.File
	client *sftp.Client
}

func (s *sftpStream) Read(p []byte) (int, error)  { return s.file.Read(p) }
func (s *sftpStream) Write(p []byte) (int, error) { return s.file.Write(p) }

func (s *sftpStream) Close() error {
	fileErr := s.file.Close()
	clientErr := s.client.Close()
	if fileErr != nil {
		return fileErr
	}
	return clientErr
}
