package volume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hn4.dev/core/policy"
)

// SchemaVersionV1 is the only manifest schema this engine understands.
const SchemaVersionV1 uint32 = 1

// Manifest is the volume's crash-safe mount-time record: the geometry
// it was formatted with, persisted so a reopen recomputes identical
// trajectories. It intentionally does not carry allocator state (that
// lives in metastore) or anything resembling a multi-volume catalog —
// superblock/epoch-ring persistence stays out of scope.
type Manifest struct {
	SchemaVersion uint32             `json:"schema_version"`
	VolumeID      string             `json:"volume_id"`
	Device        policy.DeviceClass `json:"device_class"`
	Profile       policy.Profile     `json:"profile"`
	FluxStart     uint64             `json:"flux_start"`
	Phi           uint64             `json:"phi"`
	HorizonStart  uint64             `json:"horizon_start"`
	HorizonSize   uint64             `json:"horizon_size"`
	PayloadBytes  int                `json:"payload_bytes"`
}

func manifestPath(volDir string) string {
	return filepath.Join(volDir, "MANIFEST.json")
}

func readManifest(volDir string) (*Manifest, error) {
	b, err := os.ReadFile(manifestPath(volDir)) // #nosec G304 -- volDir derives from operator-controlled datadir, not request input.
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest json: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		return nil, fmt.Errorf("manifest: schema version %d newer than supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	return &m, nil
}

// writeManifestAtomic commits MANIFEST.json via write-temp, fsync temp,
// rename, fsync directory.
func writeManifestAtomic(volDir string, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest: nil")
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest json: %w", err)
	}
	b = append(b, '\n')

	final := manifestPath(volDir)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- tmp path is derived from operator-controlled datadir.
	if err != nil {
		return fmt.Errorf("manifest open tmp: %w", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("manifest write tmp: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("manifest fsync tmp: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("manifest close tmp: %w", cerr)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("manifest rename: %w", err)
	}

	d, err := os.Open(volDir) // #nosec G304 -- volDir is derived from operator-controlled datadir, not user input.
	if err != nil {
		return fmt.Errorf("manifest fsync dir open: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("manifest fsync dir: %w", err)
	}
	if err := d.Close(); err != nil {
		return fmt.Errorf("manifest fsync dir close: %w", err)
	}
	return nil
}
