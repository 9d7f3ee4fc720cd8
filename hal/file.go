package hal

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// File is a file-backed reference Device: one sparse backing file
// holds every block, addressed by byte offset (lba-base)*BlockSize.
// It exists to exercise the HAL contract against a real filesystem in
// integration tests and the hn4ctl CLI, not as a production device
// driver (a real HDD/SSD backend talks to the block device directly).
type File struct {
	f         *os.File
	caps      Capabilities
	base      uint64
	blockSize int64
}

// OpenFile opens (creating if absent) the backing file at
// filepath.Join(dir, name). name is validated the same way the rest of
// this codebase validates a caller-supplied leaf name: it must not
// traverse outside dir.
func OpenFile(dir, name string, base uint64, caps Capabilities) (*File, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("hal: invalid backing file name %q", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("hal: create backing dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("hal: open backing file: %w", err)
	}
	return &File{f: f, caps: caps, base: base, blockSize: int64(caps.BlockSize)}, nil
}

func (d *File) offset(lba uint64) (int64, error) {
	if lba < d.base {
		return 0, fmt.Errorf("hal: lba %d below base %d", lba, d.base)
	}
	return int64(lba-d.base) * d.blockSize, nil
}

func (d *File) SyncRead(_ context.Context, lba uint64, buf []byte) error {
	if len(buf) != d.caps.BlockSize {
		return fmt.Errorf("hal: read buffer size %d, want %d", len(buf), d.caps.BlockSize)
	}
	off, err := d.offset(lba)
	if err != nil {
		return err
	}
	n, err := d.f.ReadAt(buf, off)
	if err != nil {
		// a read past the current file length is a sparse, never-written
		// block: report it as all-zero rather than an I/O error, mirroring
		// a thin-provisioned device that returns zeros for unbacked sectors.
		if n < len(buf) {
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
			return nil
		}
		return fmt.Errorf("hal: read lba %d: %w", lba, err)
	}
	return nil
}

func (d *File) SyncWrite(_ context.Context, lba uint64, buf []byte) error {
	if len(buf) != d.caps.BlockSize {
		return fmt.Errorf("hal: write buffer size %d, want %d", len(buf), d.caps.BlockSize)
	}
	off, err := d.offset(lba)
	if err != nil {
		return err
	}
	if _, err := d.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("hal: write lba %d: %w", lba, err)
	}
	return d.f.Sync()
}

func (d *File) GetCaps() Capabilities { return d.caps }

func (d *File) GetRandomU64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *File) Prefetch(context.Context, uint64, int) {}

// Close releases the backing file descriptor.
func (d *File) Close() error { return d.f.Close() }

var _ Device = (*File)(nil)
