// Package volume wires the addressing/allocator/codec/HAL/block layers
// together into one mountable unit, persisting the geometry it was
// formatted with (Manifest) and the allocator's live state (metastore)
// across remounts.
package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"hn4.dev/core/addressing"
	"hn4.dev/core/allocator"
	"hn4.dev/core/bitmap"
	"hn4.dev/core/block"
	"hn4.dev/core/codec"
	"hn4.dev/core/hal"
	"hn4.dev/core/metastore"
	"hn4.dev/core/policy"
)

const backingFileName = "blocks.img"
const metaFileName = "meta.db"

// Volume is one open, mountable HN4 block engine.
type Volume struct {
	cfg      Config
	manifest Manifest
	dir      string

	store   *metastore.Store
	device  *hal.File
	bmp     *bitmap.Bitmap
	horizon *bitmap.Bitmap
	qmask   *bitmap.QualityMask
	alloc   *allocator.Allocator
	pipe    *block.Pipeline
	log     *slog.Logger
}

// Format initializes a new volume directory: writes MANIFEST.json and
// creates an empty metastore. The backing block file is created by the
// first Open. It fails if a manifest already exists at cfg's location.
func Format(cfg Config, logger *slog.Logger) error {
	if err := addressing.CheckInvariants(); err != nil {
		return fmt.Errorf("volume: startup invariant check: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	dir := VolumeDir(cfg.DataDir, cfg.VolumeID)
	if err := ensureDir(dir); err != nil {
		return err
	}
	if _, err := os.Stat(manifestPath(dir)); err == nil {
		return fmt.Errorf("volume: %s already formatted", cfg.VolumeID)
	}

	m := &Manifest{
		SchemaVersion: SchemaVersionV1,
		VolumeID:      cfg.VolumeID,
		Device:        cfg.Device,
		Profile:       cfg.Profile,
		FluxStart:     1 << 12,
		Phi:           cfg.Capacity,
		HorizonStart:  (1 << 12) + cfg.Capacity,
		HorizonSize:   cfg.HorizonSize,
		PayloadBytes:  cfg.PayloadBytes,
	}
	if err := writeManifestAtomic(dir, m); err != nil {
		return err
	}

	store, err := metastore.Open(filepath.Join(dir, metaFileName))
	if err != nil {
		return err
	}
	defer store.Close()

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("volume formatted", "volume_id", cfg.VolumeID, "capacity", cfg.Capacity, "device", cfg.Device.String(), "profile", cfg.Profile.String())
	return nil
}

// Open mounts a previously formatted volume: it reads the manifest,
// restores the allocator's bitmap and quality-mask state from
// metastore, and opens the backing device. Session health counters
// start at zero; the all-time totals stay in metastore (see
// PersistedCounter).
func Open(cfg Config, logger *slog.Logger) (*Volume, error) {
	if err := addressing.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("volume: startup invariant check: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	dir := VolumeDir(cfg.DataDir, cfg.VolumeID)
	m, err := readManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("volume: %s not formatted (read manifest: %w)", cfg.VolumeID, err)
	}

	store, err := metastore.Open(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, err
	}

	bmp, err := store.LoadBitmap("ballistic", m.FluxStart, m.Phi)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	horizon, err := store.LoadBitmap("horizon", m.HorizonStart, m.HorizonSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	qmask, err := store.LoadQualityMask("ballistic", m.FluxStart, m.Phi)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	geo := addressing.Geometry{FluxStart: m.FluxStart, Phi: m.Phi, HorizonStart: m.HorizonStart}
	alloc := allocator.New(geo, bmp, qmask, horizon)

	caps := hal.Capabilities{
		DeviceClass: m.Device,
		BlockSize:   block.HeaderSize + m.PayloadBytes,
	}
	device, err := hal.OpenFile(dir, backingFileName, geo.FluxStart, caps)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pol := policy.For(m.Device, m.Profile)
	pipe := &block.Pipeline{
		Device:          device,
		Allocator:       alloc,
		Geometry:        geo,
		Policy:          pol,
		Profile:         m.Profile,
		ScanProf:        scanProfileFor(pol),
		PayloadCapacity: m.PayloadBytes,
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Volume{
		cfg: cfg, manifest: *m, dir: dir,
		store: store, device: device, bmp: bmp, horizon: horizon, qmask: qmask,
		alloc: alloc, pipe: pipe, log: logger,
	}, nil
}

// Close persists live allocator state back to metastore and releases
// file handles. It must be called before process exit for the heal
// counters and bitmap state to survive a remount.
func (v *Volume) Close() error {
	if err := v.store.SaveBitmap("ballistic", v.bmp); err != nil {
		return err
	}
	if err := v.store.SaveBitmap("horizon", v.horizon); err != nil {
		return err
	}
	if err := v.store.SaveQualityMask("ballistic", v.qmask); err != nil {
		return err
	}
	counters := []struct {
		name  string
		delta uint64
	}{
		{"heal_count", v.pipe.HealCount.Load()},
		{"crc_failures", v.pipe.CRCFailures.Load()},
		{"collapse_count", v.pipe.CollapseCount.Load()},
		{"taint_count", v.pipe.TaintCount.Load()},
	}
	for _, c := range counters {
		if c.delta == 0 {
			continue
		}
		if _, err := v.store.IncrCounter(c.name, c.delta); err != nil {
			return err
		}
	}
	if err := v.device.Close(); err != nil {
		return err
	}
	return v.store.Close()
}

// ReadBlock reads a logical block through the full candidate-probe,
// validation, and auto-medic pipeline.
func (v *Volume) ReadBlock(ctx context.Context, anchor *block.Anchor, blockIdx uint64, dst []byte, sessionPerms block.Permission) error {
	err := v.pipe.ReadBlock(ctx, anchor, blockIdx, dst, sessionPerms)
	if err != nil {
		var berr *block.Error
		if errors.As(err, &berr) && berr.Outcome != block.OutcomeInfoSparse {
			v.log.Warn("read outcome", "lba_block", blockIdx, "anchor_seed_id", fmt.Sprintf("%x", anchor.SeedID[:4]), "outcome", berr.Outcome.String())
		}
	}
	return err
}

// WriteBlock encodes, places, and commits a logical block, updating
// the anchor's orbit hint and eclipsing any stale lower-k shadow.
func (v *Volume) WriteBlock(ctx context.Context, anchor *block.Anchor, blockIdx uint64, payload []byte, sessionPerms block.Permission) error {
	if err := v.pipe.WriteBlock(ctx, anchor, blockIdx, payload, sessionPerms); err != nil {
		v.log.Warn("write failed", "block", blockIdx, "err", err)
		return err
	}
	return nil
}

// AllocBlock claims a physical LBA for anchor/blockIdx without writing
// anything, exposed for tests and VFS pre-allocation. It does not
// mutate anchor.
func (v *Volume) AllocBlock(anchor *block.Anchor, blockIdx uint64) (lba uint64, k int, err error) {
	req := allocator.Request{G: anchor.GravityCenter, V: anchor.OrbitVector, N: blockIdx, M: anchor.FractalScale}
	res, err := v.alloc.Alloc(req, v.pipe.Policy)
	if err != nil {
		return 0, 0, err
	}
	return res.LBA, res.K, nil
}

// FreeBlock clears the bitmap bit at lba in the ballistic region. Callers are
// responsible for knowing whether lba belongs to the Horizon region;
// use FreeHorizonBlock for that case.
func (v *Volume) FreeBlock(lba uint64) error {
	return v.alloc.Free(lba, false)
}

// FreeHorizonBlock clears the bitmap bit at lba in the Horizon region.
func (v *Volume) FreeHorizonBlock(lba uint64) error {
	return v.alloc.Free(lba, true)
}

// CompressBlock runs the TCC encoder directly, for callers (or the
// CLI) that want to pre-compress without going through WriteBlock.
func (v *Volume) CompressBlock(payload []byte) ([]byte, error) {
	return codec.Encode(payload, v.pipe.ScanProf)
}

// DecompressBlock runs the TCC decoder directly.
func (v *Volume) DecompressBlock(compressed []byte, dstLen int) ([]byte, error) {
	return codec.Decode(compressed, dstLen)
}

// CompressBound returns the worst-case encoded size for a payload of
// srcLen bytes.
func (v *Volume) CompressBound(srcLen int) int {
	return codec.Bound(srcLen)
}

// scanProfileFor translates a resolved allocator/read policy into the
// TCC encoder's device-class scan tuning: HDD scans deeper with a
// strided pre-check, NVM hints non-temporal literal flushes. codec
// stays a leaf package with no dependency on policy, so this
// translation lives here where both are already imported.
func scanProfileFor(pol policy.Policy) codec.ScanProfile {
	return codec.ScanProfile{
		WindowBytes: pol.ScanDepth,
		DeepScan:    pol.DeepScan,
		UseNTStores: pol.UseNTStores,
	}
}

// HealCount reports how many auto-medic repairs ReadBlock has
// performed since this volume was opened.
func (v *Volume) HealCount() uint64 { return v.pipe.HealCount.Load() }

// CollapseCount reports how many trajectory-collapse detections have
// occurred since this volume was opened.
func (v *Volume) CollapseCount() uint64 { return v.pipe.CollapseCount.Load() }

// PersistedCounter reads a health counter's all-time total from the
// metastore. Session counters fold into these totals at Close.
func (v *Volume) PersistedCounter(name string) (uint64, error) {
	return v.store.GetCounter(name)
}

// SetBlockQuality overwrites the 2-bit quality tag for a ballistic LBA.
// Background compaction and operator tooling use it to mark failing
// media; the tag persists across remounts via the metastore.
func (v *Volume) SetBlockQuality(lba uint64, q bitmap.Quality) error {
	return v.qmask.Set(lba, q)
}

// BlockQuality reads the 2-bit quality tag for a ballistic LBA.
func (v *Volume) BlockQuality(lba uint64) (bitmap.Quality, error) {
	return v.qmask.Get(lba)
}

// Manifest returns the volume's persisted geometry.
func (v *Volume) Manifest() Manifest { return v.manifest }
