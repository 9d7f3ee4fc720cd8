// Command hn4ctl is the operator-facing CLI for the HN4 block engine:
// format a volume, drive read/write/alloc/free directly against an
// anchor, run the TCC codec standalone, and print diagnostics. It
// exists for tests and manual exercising of the block layer.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"hn4.dev/core/block"
	"hn4.dev/core/codec"
	"hn4.dev/core/diag"
	"hn4.dev/core/policy"
	"hn4.dev/core/volume"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// stdinReader is the source cmdWrite/cmdCompress read a payload from.
// Tests swap it for a bytes.Reader instead of touching os.Stdin.
var stdinReader io.Reader = os.Stdin

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: hn4ctl <format|stat|alloc|free|write|read|compress|decompress|diag> [flags]")
		return 2
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "format":
		return cmdFormat(rest, stdout, stderr)
	case "stat":
		return cmdStat(rest, stdout, stderr)
	case "alloc":
		return cmdAlloc(rest, stdout, stderr)
	case "free":
		return cmdFree(rest, stdout, stderr)
	case "write":
		return cmdWrite(rest, stdout, stderr)
	case "read":
		return cmdRead(rest, stdout, stderr)
	case "compress":
		return cmdCompress(rest, stdout, stderr)
	case "decompress":
		return cmdDecompress(rest, stdout, stderr)
	case "diag":
		return cmdDiag(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown subcommand %q\n", sub)
		return 2
	}
}

// anchorFlags bundles the flag.FlagSet vars every anchor-driven
// subcommand shares, so each command only wires them once.
type anchorFlags struct {
	seedHex string
	g       uint64
	v       uint64
	m       uint
	gen     uint
	perms   string
	class   string
	n       uint64
}

func registerAnchorFlags(fs *flag.FlagSet, af *anchorFlags) {
	fs.StringVar(&af.seedHex, "seed", "00000000000000000000000000000000", "32-hex-char seed_id")
	fs.Uint64Var(&af.g, "g", 0, "gravity_center")
	fs.Uint64Var(&af.v, "v", 0, "orbit_vector")
	fs.UintVar(&af.m, "m", 0, "fractal_scale (0..63)")
	fs.UintVar(&af.gen, "gen", 0, "write_gen")
	fs.StringVar(&af.perms, "perms", "read,write", "comma-separated: read,write,immutable,encrypted,sovereign")
	fs.StringVar(&af.class, "class", "valid", "comma-separated: valid,compressed,horizon,nano")
	fs.Uint64Var(&af.n, "n", 0, "logical block index")
}

func (af *anchorFlags) build() (*block.Anchor, error) {
	seedBytes, err := hex.DecodeString(af.seedHex)
	if err != nil || len(seedBytes) != 16 {
		return nil, fmt.Errorf("seed must be 32 hex chars (16 bytes): %v", err)
	}
	var seed [16]byte
	copy(seed[:], seedBytes)

	perms, err := parsePermissions(af.perms)
	if err != nil {
		return nil, err
	}
	class, err := parseDataClass(af.class)
	if err != nil {
		return nil, err
	}

	return &block.Anchor{
		SeedID:        seed,
		GravityCenter: af.g,
		OrbitVector:   af.v,
		FractalScale:  uint8(af.m),
		WriteGen:      uint32(af.gen),
		Permissions:   perms,
		DataClass:     class,
	}, nil
}

func parsePermissions(csv string) (block.Permission, error) {
	var p block.Permission
	for _, tok := range splitCSV(csv) {
		switch tok {
		case "read":
			p |= block.PermRead
		case "write":
			p |= block.PermWrite
		case "immutable":
			p |= block.PermImmutable
		case "encrypted":
			p |= block.PermEncrypted
		case "sovereign":
			p |= block.PermSovereign
		default:
			return 0, fmt.Errorf("unknown permission %q", tok)
		}
	}
	return p, nil
}

func parseDataClass(csv string) (block.DataClass, error) {
	var c block.DataClass
	for _, tok := range splitCSV(csv) {
		switch tok {
		case "valid":
			c |= block.ClassValid
		case "compressed":
			c |= block.ClassCompressed
		case "horizon":
			c |= block.ClassHorizon
		case "nano":
			c |= block.ClassNano
		default:
			return 0, fmt.Errorf("unknown data class %q", tok)
		}
	}
	return c, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func parseDeviceClass(s string) (policy.DeviceClass, error) {
	switch strings.ToUpper(s) {
	case "HDD":
		return policy.DeviceHDD, nil
	case "SSD":
		return policy.DeviceSSD, nil
	case "NVM":
		return policy.DeviceNVM, nil
	default:
		return 0, fmt.Errorf("unknown device class %q", s)
	}
}

func parseProfile(s string) (policy.Profile, error) {
	switch strings.ToUpper(s) {
	case "GENERIC":
		return policy.ProfileGeneric, nil
	case "PICO":
		return policy.ProfilePico, nil
	case "ARCHIVE":
		return policy.ProfileArchive, nil
	case "SYSTEM":
		return policy.ProfileSystem, nil
	default:
		return 0, fmt.Errorf("unknown profile %q", s)
	}
}

func openVolume(datadir, volumeID string, logger *slog.Logger) (*volume.Volume, error) {
	cfg := volume.DefaultConfig()
	cfg.DataDir = datadir
	cfg.VolumeID = volumeID
	return volume.Open(cfg, logger)
}

func cmdFormat(args []string, stdout, stderr io.Writer) int {
	defaults := volume.DefaultConfig()
	fs := flag.NewFlagSet("format", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", defaults.DataDir, "volume data directory")
	volumeID := fs.String("volume", defaults.VolumeID, "volume id")
	deviceStr := fs.String("device", "SSD", "device class: HDD|SSD|NVM")
	profileStr := fs.String("profile", "GENERIC", "profile: GENERIC|PICO|ARCHIVE|SYSTEM")
	capacity := fs.Uint64("capacity", defaults.Capacity, "ballistic region capacity, in LBAs")
	horizonSize := fs.Uint64("horizon-size", defaults.HorizonSize, "horizon region size, in LBAs")
	payloadBytes := fs.Int("payload-bytes", defaults.PayloadBytes, "logical payload bytes per block")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dev, err := parseDeviceClass(*deviceStr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	profile, err := parseProfile(*profileStr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cfg := volume.Config{
		DataDir:      *datadir,
		VolumeID:     *volumeID,
		Device:       dev,
		Profile:      profile,
		Capacity:     *capacity,
		HorizonSize:  *horizonSize,
		PayloadBytes: *payloadBytes,
		LogLevel:     "info",
	}
	if err := volume.Format(cfg, slog.Default()); err != nil {
		fmt.Fprintf(stderr, "format failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "formatted volume %q in %s\n", cfg.VolumeID, cfg.DataDir)
	return 0
}

func cmdStat(args []string, stdout, stderr io.Writer) int {
	defaults := volume.DefaultConfig()
	fs := flag.NewFlagSet("stat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", defaults.DataDir, "volume data directory")
	volumeID := fs.String("volume", defaults.VolumeID, "volume id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	v, err := openVolume(*datadir, *volumeID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 1
	}
	defer v.Close()

	m := v.Manifest()
	fmt.Fprintf(stdout, "volume_id=%s device=%s profile=%s flux_start=%d phi=%d horizon_start=%d horizon_size=%d payload_bytes=%d\n",
		m.VolumeID, m.Device, m.Profile, m.FluxStart, m.Phi, m.HorizonStart, m.HorizonSize, m.PayloadBytes)
	for _, name := range []string{"heal_count", "crc_failures", "collapse_count", "taint_count"} {
		total, err := v.PersistedCounter(name)
		if err != nil {
			fmt.Fprintf(stderr, "read counter %s: %v\n", name, err)
			return 1
		}
		fmt.Fprintf(stdout, "%s=%d\n", name, total)
	}
	return 0
}

func cmdAlloc(args []string, stdout, stderr io.Writer) int {
	defaults := volume.DefaultConfig()
	fs := flag.NewFlagSet("alloc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", defaults.DataDir, "volume data directory")
	volumeID := fs.String("volume", defaults.VolumeID, "volume id")
	var af anchorFlags
	registerAnchorFlags(fs, &af)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	anchor, err := af.build()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	v, err := openVolume(*datadir, *volumeID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 1
	}
	defer v.Close()

	lba, k, err := v.AllocBlock(anchor, af.n)
	if err != nil {
		fmt.Fprintf(stderr, "alloc failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "lba=%d k=%d\n", lba, k)
	return 0
}

func cmdFree(args []string, stdout, stderr io.Writer) int {
	defaults := volume.DefaultConfig()
	fs := flag.NewFlagSet("free", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", defaults.DataDir, "volume data directory")
	volumeID := fs.String("volume", defaults.VolumeID, "volume id")
	lba := fs.Uint64("lba", 0, "physical LBA to free")
	horizon := fs.Bool("horizon", false, "lba belongs to the horizon region")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	v, err := openVolume(*datadir, *volumeID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 1
	}
	defer v.Close()

	if *horizon {
		err = v.FreeHorizonBlock(*lba)
	} else {
		err = v.FreeBlock(*lba)
	}
	if err != nil {
		fmt.Fprintf(stderr, "free failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "freed lba=%d\n", *lba)
	return 0
}

func cmdWrite(args []string, stdout, stderr io.Writer) int {
	defaults := volume.DefaultConfig()
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", defaults.DataDir, "volume data directory")
	volumeID := fs.String("volume", defaults.VolumeID, "volume id")
	sovereign := fs.Bool("sovereign", false, "present SOVEREIGN session permission")
	var af anchorFlags
	registerAnchorFlags(fs, &af)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	anchor, err := af.build()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	v, err := openVolume(*datadir, *volumeID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 1
	}
	defer v.Close()

	var sessionPerms block.Permission
	if *sovereign {
		sessionPerms = block.PermSovereign
	}

	payloadCap := v.Manifest().PayloadBytes
	raw, err := io.ReadAll(stdinReader)
	if err != nil {
		fmt.Fprintf(stderr, "read stdin: %v\n", err)
		return 1
	}
	if len(raw) > payloadCap {
		fmt.Fprintf(stderr, "payload %d bytes exceeds capacity %d\n", len(raw), payloadCap)
		return 2
	}
	payload := make([]byte, payloadCap)
	copy(payload, raw)

	if err := v.WriteBlock(context.Background(), anchor, af.n, payload, sessionPerms); err != nil {
		fmt.Fprintf(stderr, "write failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote block %d, new write_gen=%d\n", af.n, anchor.WriteGen)
	return 0
}

func cmdRead(args []string, stdout, stderr io.Writer) int {
	defaults := volume.DefaultConfig()
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", defaults.DataDir, "volume data directory")
	volumeID := fs.String("volume", defaults.VolumeID, "volume id")
	sovereign := fs.Bool("sovereign", false, "present SOVEREIGN session permission")
	var af anchorFlags
	registerAnchorFlags(fs, &af)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	anchor, err := af.build()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	v, err := openVolume(*datadir, *volumeID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 1
	}
	defer v.Close()

	var sessionPerms block.Permission
	if *sovereign {
		sessionPerms = block.PermSovereign
	}

	dst := make([]byte, v.Manifest().PayloadBytes)
	if err := v.ReadBlock(context.Background(), anchor, af.n, dst, sessionPerms); err != nil {
		fmt.Fprintf(stderr, "read failed: %v\n", err)
		return 1
	}
	if _, err := stdout.Write(dst); err != nil {
		fmt.Fprintf(stderr, "write stdout: %v\n", err)
		return 1
	}
	return 0
}

func cmdCompress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", "", "volume data directory (for device-class scan policy; optional)")
	volumeID := fs.String("volume", "", "volume id (optional, with -datadir)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := io.ReadAll(stdinReader)
	if err != nil {
		fmt.Fprintf(stderr, "read stdin: %v\n", err)
		return 1
	}

	var compressed []byte
	if *datadir != "" {
		v, err := openVolume(*datadir, *volumeID, nil)
		if err != nil {
			fmt.Fprintf(stderr, "open failed: %v\n", err)
			return 1
		}
		defer v.Close()
		compressed, err = v.CompressBlock(raw)
		if err != nil {
			fmt.Fprintf(stderr, "compress failed: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintf(stderr, "bound=%d\n", codec.Bound(len(raw)))
		fmt.Fprintln(stderr, "no -datadir given, nothing to compress against a device-class policy")
		return 2
	}

	if _, err := stdout.Write(compressed); err != nil {
		fmt.Fprintf(stderr, "write stdout: %v\n", err)
		return 1
	}
	return 0
}

func cmdDecompress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decompress", flag.ContinueOnError)
	fs.SetOutput(stderr)
	datadir := fs.String("datadir", "", "volume data directory")
	volumeID := fs.String("volume", "", "volume id")
	dstLen := fs.Int("dst-len", 0, "expected decompressed logical length")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *datadir == "" || *dstLen <= 0 {
		fmt.Fprintln(stderr, "decompress requires -datadir and -dst-len")
		return 2
	}

	v, err := openVolume(*datadir, *volumeID, nil)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 1
	}
	defer v.Close()

	raw, err := io.ReadAll(stdinReader)
	if err != nil {
		fmt.Fprintf(stderr, "read stdin: %v\n", err)
		return 1
	}
	out, err := v.DecompressBlock(raw, *dstLen)
	if err != nil {
		fmt.Fprintf(stderr, "decompress failed: %v\n", err)
		return 1
	}
	if _, err := stdout.Write(out); err != nil {
		fmt.Fprintf(stderr, "write stdout: %v\n", err)
		return 1
	}
	return 0
}

func cmdDiag(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "anchor" {
		fmt.Fprintln(stderr, "usage: hn4ctl diag anchor [flags]")
		return 2
	}
	fs := flag.NewFlagSet("diag anchor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var af anchorFlags
	registerAnchorFlags(fs, &af)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	anchor, err := af.build()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	fmt.Fprintln(stdout, diag.AnchorFingerprint(anchor))
	return 0
}
