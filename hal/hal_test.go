package hal

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"hn4.dev/core/policy"
)

func testCaps() Capabilities {
	return Capabilities{DeviceClass: policy.DeviceSSD, BlockSize: 512}
}

func TestMemoryWriteReadRoundTrip(t *testing.T) {
	m := NewMemory(100, 16, testCaps())
	buf := bytes.Repeat([]byte{0x5A}, 512)
	if err := m.SyncWrite(context.Background(), 105, buf); err != nil {
		t.Fatalf("SyncWrite: %v", err)
	}
	got := make([]byte, 512)
	if err := m.SyncRead(context.Background(), 105, got); err != nil {
		t.Fatalf("SyncRead: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatalf("round trip mismatch")
	}
}

func TestMemoryInjectedFaultIsOneShot(t *testing.T) {
	m := NewMemory(0, 4, testCaps())
	wantErr := errors.New("simulated HW fault")
	m.InjectFault(2, wantErr)

	buf := make([]byte, 512)
	if err := m.SyncRead(context.Background(), 2, buf); !errors.Is(err, wantErr) {
		t.Fatalf("expected injected fault, got %v", err)
	}
	if err := m.SyncRead(context.Background(), 2, buf); err != nil {
		t.Fatalf("fault should be one-shot, got %v", err)
	}
}

func TestMemoryOutOfRangeLBA(t *testing.T) {
	m := NewMemory(0, 4, testCaps())
	buf := make([]byte, 512)
	if err := m.SyncRead(context.Background(), 99, buf); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestFileDeviceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenFile(dir, "blocks.img", 0, testCaps())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	buf := bytes.Repeat([]byte{0x11}, 512)
	if err := d.SyncWrite(context.Background(), 3, buf); err != nil {
		t.Fatalf("SyncWrite: %v", err)
	}
	got := make([]byte, 512)
	if err := d.SyncRead(context.Background(), 3, got); err != nil {
		t.Fatalf("SyncRead: %v", err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatalf("round trip mismatch")
	}
}

func TestFileDeviceUnwrittenBlockReadsZero(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenFile(dir, "blocks.img", 0, testCaps())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer d.Close()

	got := make([]byte, 512)
	for i := range got {
		got[i] = 0xFF
	}
	if err := d.SyncRead(context.Background(), 7, got); err != nil {
		t.Fatalf("SyncRead: %v", err)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d of unwritten block is %x, want 0", i, b)
		}
	}
}

func TestFileDeviceRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenFile(dir, "../escape.img", 0, testCaps()); err == nil {
		t.Fatalf("expected rejection of a path-traversing backing file name")
	}
}
