package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avasko/sshbridge/internal/core/domain"
	"go.uber.org/zap/zaptest"
)

func bridgeFixture(t *testing.T) (*Bridge, *Registry, *fakeTransport, *fakeTransport) {
	t.Helper()
	registry, dialer := testRegistry(t)

	srcTransport := newFakeTransport()
	dialer.next = srcTransport
	mustConnect(t, registry, "src", "10.0.0.1", "")

	destTransport := newFakeTransport()
	dialer.next = destTransport
	mustConnect(t, registry, "dest", "10.0.0.2", "")

	return NewBridge(zaptest.NewLogger(t).Sugar(), ""), registry, srcTransport, destTransport
}

func TestBridgeSyncCopiesBytes(t *testing.T) {
	bridge, registry, src, dest := bridgeFixture(t)

	// Larger than one relay chunk so the loop runs more than once.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 5*1024) // 80 KiB
	src.putFile("/etc/app.conf", payload)

	result, err := bridge.Sync(context.Background(), registry, "src", "/etc/app.conf", "dest", "/etc/app.conf")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Bytes != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), result.Bytes)
	}
	if !bytes.Equal(dest.getFile("/etc/app.conf"), payload) {
		t.Fatalf("destination content differs from source")
	}
}

func TestBridgeSyncInterruptedReportsProgress(t *testing.T) {
	bridge, registry, src, _ := bridgeFixture(t)

	payload := bytes.Repeat([]byte("x"), 100*1024)
	src.putFile("/data/blob", payload)
	// The source stream dies after one full chunk.
	src.readFailAfter = bridgeChunkSize

	result, err := bridge.Sync(context.Background(), registry, "src", "/data/blob", "dest", "/data/blob")
	if !errors.Is(err, domain.ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
	if result.Bytes != bridgeChunkSize {
		t.Fatalf("expected %d bytes reported, got %d", bridgeChunkSize, result.Bytes)
	}
}

func TestBridgeSyncMissingSource(t *testing.T) {
	bridge, registry, _, _ := bridgeFixture(t)

	_, err := bridge.Sync(context.Background(), registry, "src", "/no/such/file", "dest", "/tmp/out")
	if !errors.Is(err, domain.ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
}

func TestBridgeSyncUnknownAlias(t *testing.T) {
	bridge, registry, _, _ := bridgeFixture(t)

	_, err := bridge.Sync(context.Background(), registry, "ghost", "/a", "dest", "/b")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBridgeSyncSameConnection(t *testing.T) {
	bridge, registry, src, _ := bridgeFixture(t)

	src.putFile("/tmp/in", []byte("copy me"))
	result, err := bridge.Sync(context.Background(), registry, "src", "/tmp/in", "src", "/tmp/out")
	if err != nil {
		t.Fatalf("sync within one connection: %v", err)
	}
	if result.Bytes != int64(len("copy me")) {
		t.Fatalf("unexpected byte count %d", result.Bytes)
	}
	if string(src.getFile("/tmp/out")) != "copy me" {
		t.Fatalf("unexpected destination content %q", src.getFile("/tmp/out"))
	}
}

func TestBridgeSyncRefusesPathOutsideRoot(t *testing.T) {
	_, registry, src, dest := bridgeFixture(t)
	bridge := NewBridge(zaptest.NewLogger(t).Sugar(), "/srv/data")

	src.putFile("/srv/data/in", []byte("payload"))

	if _, err := bridge.Sync(context.Background(), registry, "src", "/etc/shadow", "dest", "/srv/data/out"); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied for source outside root, got %v", err)
	}
	if _, err := bridge.Sync(context.Background(), registry, "src", "/srv/data/in", "dest", "/etc/shadow"); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied for destination outside root, got %v", err)
	}
	if got := dest.getFile("/etc/shadow"); got != nil {
		t.Fatalf("denied sync must not write to the destination")
	}
}

func TestBridgeSyncReleasesLocks(t *testing.T) {
	bridge, registry, src, _ := bridgeFixture(t)

	src.putFile("/tmp/in", []byte("data"))
	if _, err := bridge.Sync(context.Background(), registry, "src", "/tmp/in", "dest", "/tmp/out"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Both execution locks must be free again.
	for _, alias := range []string{"src", "dest"} {
		conn, err := registry.Get(alias)
		if err != nil {
			t.Fatalf("get %s: %v", alias, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		if err := conn.Acquire(ctx); err != nil {
			t.Fatalf("lock on %s still held: %v", alias, err)
		}
		conn.Release()
		cancel()
	}
}
