package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/avasko/sshbridge/internal/core/domain"
	"github.com/avasko/sshbridge/internal/core/ports"
)

// fakeTransport is an in-memory stand-in for one SSH session. Its remote
// filesystem is a map; Exec behavior is pluggable per test.
type fakeTransport struct {
	execFn func(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)

	mu       sync.Mutex
	files    map[string][]byte
	closed   bool
	closeErr error

	// readFailAfter, when >= 0, makes reads fail once that many bytes
	// have been served.
	readFailAfter int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		files:         make(map[string][]byte),
		readFailAfter: -1,
	}
}

func (f *fakeTransport) Exec(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	if f.execFn != nil {
		return f.execFn(ctx, command, stdout, stderr)
	}
	return 0, nil
}

func (f *fakeTransport) OpenRead(path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return &fakeReader{reader: bytes.NewReader(data), failAfter: f.readFailAfter}, nil
}

func (f *fakeTransport) OpenWrite(path string) (io.WriteCloser, error) {
	return &fakeWriter{transport: f, path: path}, nil
}

func (f *fakeTransport) ReadDir(path string) ([]domain.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var infos []domain.FileInfo
	for name, data := range f.files {
		infos = append(infos, domain.FileInfo{Name: name, Size: int64(len(data))})
	}
	return infos, nil
}

func (f *fakeTransport) DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	return nil, errors.New("fake transport does not tunnel")
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) putFile(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
}

func (f *fakeTransport) getFile(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

type fakeReader struct {
	reader    *bytes.Reader
	failAfter int64
	served    int64
}

func (r *fakeReader) Read(p []byte) (int, error) {
	if r.failAfter >= 0 && r.served >= r.failAfter {
		return 0, errors.New("stream interrupted")
	}
	if r.failAfter >= 0 && int64(len(p)) > r.failAfter-r.served {
		p = p[:r.failAfter-r.served]
	}
	n, err := r.reader.Read(p)
	r.served += int64(n)
	return n, err
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	transport *fakeTransport
	path      string
	buf       bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	w.transport.putFile(w.path, w.buf.Bytes())
	return nil
}

// fakeDialer hands out fakeTransports and records what it was asked for.
type fakeDialer struct {
	mu    sync.Mutex
	dials []dialRecord
	err   error
	// next, when set, is returned by the following Dial call.
	next *fakeTransport
}

type dialRecord struct {
	target domain.Target
	auth   domain.Auth
	via    ports.Transport
}

func (d *fakeDialer) Dial(ctx context.Context, target domain.Target, auth domain.Auth, via ports.Transport) (ports.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, dialRecord{target: target, auth: auth, via: via})
	if d.err != nil {
		return nil, d.err
	}
	t := d.next
	d.next = nil
	if t == nil {
		t = newFakeTransport()
	}
	return t, nil
}

func (d *fakeDialer) lastDial() dialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[len(d.dials)-1]
}

// fakeResolver implements ports.TargetResolver with one canned entry.
type fakeResolver struct {
	target  domain.Target
	keyPath string
	ok      bool
}

func (f *fakeResolver) Lookup(alias string) (domain.Target, string, bool) {
	return f.target, f.keyPath, f.ok
}

// fakeIdentity implements ports.Identity with canned values.
type fakeIdentity struct {
	exists bool
	pub    string
	pem    []byte
}

func (f *fakeIdentity) PublicKey() (string, error)     { return f.pub, nil }
func (f *fakeIdentity) PrivateKeyPEM() ([]byte, error) { return f.pem, nil }
func (f *fakeIdentity) Exists() bool                   { return f.exists }
