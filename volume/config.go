package volume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hn4.dev/core/policy"
)

// Config describes how to mount or format a volume. It is the
// operator-facing knob set; Manifest (manifest.go) is what actually
// gets persisted once the volume exists.
type Config struct {
	DataDir      string             `json:"data_dir"`
	VolumeID     string             `json:"volume_id"`
	Device       policy.DeviceClass `json:"device_class"`
	Profile      policy.Profile     `json:"profile"`
	Capacity     uint64             `json:"capacity"`      // number of addressable LBAs in the ballistic region
	HorizonSize  uint64             `json:"horizon_size"`  // number of LBAs in the horizon fallback region
	PayloadBytes int                `json:"payload_bytes"` // logical bytes per block, excluding the header
	LogLevel     string             `json:"log_level"`
}

// maxPayloadBytes caps a block's logical payload at 64 MiB; typical
// volumes use 4 KiB.
const maxPayloadBytes = 64 << 20

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir returns .hn4 under the user's home directory, falling
// back to a relative .hn4 when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".hn4"
	}
	return filepath.Join(home, ".hn4")
}

// DefaultConfig returns sane defaults for a single-volume, SSD-class,
// generic-profile development setup.
func DefaultConfig() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		VolumeID:     "default",
		Device:       policy.DeviceSSD,
		Profile:      policy.ProfileGeneric,
		Capacity:     1 << 20,
		HorizonSize:  1 << 16,
		PayloadBytes: 4096,
		LogLevel:     "info",
	}
}

// ValidateConfig checks cfg for internal consistency before Open/Format
// acts on it.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if strings.TrimSpace(cfg.VolumeID) == "" {
		return errors.New("volume_id is required")
	}
	if err := policy.Validate(cfg.Device, cfg.Profile); err != nil {
		return err
	}
	if cfg.Capacity == 0 {
		return errors.New("capacity must be > 0")
	}
	if cfg.PayloadBytes <= 0 {
		return errors.New("payload_bytes must be > 0")
	}
	if cfg.PayloadBytes > maxPayloadBytes {
		return fmt.Errorf("payload_bytes %d exceeds the %d-byte block ceiling", cfg.PayloadBytes, maxPayloadBytes)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return nil
}

// VolumeDir returns the on-disk directory for a volume under datadir.
func VolumeDir(datadir, volumeID string) string {
	return filepath.Join(datadir, "volumes", volumeID)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
