// Package config loads bsud's JSON configuration file, resolves cloud
// credentials (file or environment fallback), and discovers the VM's
// region/subregion/identity from instance metadata.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/cloudvolume"
)

// Target is a drive's desired state.
type Target string

const (
	TargetOnline  Target = "online"
	TargetOffline Target = "offline"
	TargetDelete  Target = "delete"
)

// Drive defaults, per spec.
const (
	defaultInitialSizeGiB      = 10
	defaultMaxBsuCount         = 10
	defaultMaxUsedSpacePerc    = 85
	defaultMinUsedSpacePerc    = 40
	defaultDiskScaleFactorPerc = 20
	defaultDiskType            = cloudvolume.Gp2
)

// Drive is one fully-resolved drive configuration: defaults applied,
// percentages converted to unit fractions.
type Drive struct {
	Name                string
	Target              Target
	MountPath           string
	DiskType            cloudvolume.DiskType
	DiskIOPSPerGiB      *int
	InitialSizeGiB      int
	MaxBsuCount         int
	MaxTotalSizeGiB     *int
	MaxUsedSpaceFrac    float64
	MinUsedSpaceFrac    float64
	DiskScaleFactorFrac float64
}

// Config is the fully-resolved, validated process configuration.
type Config struct {
	AccessKey string
	SecretKey string
	Drives    []Drive
}

type wireAuth struct {
	AccessKey string `json:"access-key"`
	SecretKey string `json:"secret-key"`
}

type wireDrive struct {
	Name                string `json:"name"`
	Target              string `json:"target"`
	MountPath           string `json:"mount-path"`
	DiskType            string `json:"disk-type"`
	DiskIOPSPerGiB      *int   `json:"disk-iops-per-gib"`
	MaxTotalSizeGiB     *int   `json:"max-total-size-gib"`
	InitialSizeGiB      *int   `json:"initial-size-gib"`
	MaxBsuCount         *int   `json:"max-bsu-count"`
	MaxUsedSpacePerc    *int   `json:"max-used-space-perc"`
	MinUsedSpacePerc    *int   `json:"min-used-space-perc"`
	DiskScaleFactorPerc *int   `json:"disk-scale-factor-perc"`
}

type wireConfig struct {
	Authentication *wireAuth   `json:"authentication"`
	Drives         []wireDrive `json:"drives"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, bsuerrors.New(bsuerrors.ConfigInvalid, "config.Load", err)
	}
	var wire wireConfig
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, bsuerrors.New(bsuerrors.ConfigInvalid, "config.Load", err)
	}

	accessKey, secretKey, err := resolveCredentials(wire.Authentication)
	if err != nil {
		return nil, err
	}

	drives := make([]Drive, 0, len(wire.Drives))
	seen := map[string]bool{}
	for _, d := range wire.Drives {
		drive, err := resolveDrive(d)
		if err != nil {
			return nil, err
		}
		if seen[drive.Name] {
			return nil, bsuerrors.New(bsuerrors.ConfigInvalid, "config.Load", fmt.Errorf("duplicate drive name %q", drive.Name))
		}
		seen[drive.Name] = true
		drives = append(drives, drive)
	}

	return &Config{AccessKey: accessKey, SecretKey: secretKey, Drives: drives}, nil
}

func resolveCredentials(auth *wireAuth) (string, string, error) {
	if auth != nil && auth.AccessKey != "" && auth.SecretKey != "" {
		return auth.AccessKey, auth.SecretKey, nil
	}
	accessKey := os.Getenv("OSC_ACCESS_KEY")
	secretKey := os.Getenv("OSC_SECRET_KEY")
	if accessKey == "" || secretKey == "" {
		return "", "", bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveCredentials",
			fmt.Errorf("no authentication block in config and OSC_ACCESS_KEY/OSC_SECRET_KEY not set"))
	}
	return accessKey, secretKey, nil
}

func resolveDrive(d wireDrive) (Drive, error) {
	if d.Name == "" {
		return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive missing name"))
	}
	if d.MountPath == "" {
		return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive %q missing mount-path", d.Name))
	}

	target := Target(d.Target)
	switch target {
	case TargetOnline, TargetOffline, TargetDelete:
	default:
		return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive %q has invalid target %q", d.Name, d.Target))
	}

	diskType := defaultDiskType
	if d.DiskType != "" {
		diskType = cloudvolume.DiskType(d.DiskType)
		switch diskType {
		case cloudvolume.Standard, cloudvolume.Gp2, cloudvolume.Io1:
		default:
			return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive %q has invalid disk-type %q", d.Name, d.DiskType))
		}
	}

	initialSizeGiB := intOr(d.InitialSizeGiB, defaultInitialSizeGiB)
	maxBsuCount := intOr(d.MaxBsuCount, defaultMaxBsuCount)
	maxUsedPerc := intOr(d.MaxUsedSpacePerc, defaultMaxUsedSpacePerc)
	minUsedPerc := intOr(d.MinUsedSpacePerc, defaultMinUsedSpacePerc)
	scaleFactorPerc := intOr(d.DiskScaleFactorPerc, defaultDiskScaleFactorPerc)

	if initialSizeGiB < 1 {
		return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive %q initial-size-gib must be >= 1", d.Name))
	}
	// max_bsu_count >= 2 is required: is_drive_reached_max_attached_bsu_minus_one
	// only makes sense once at least two slots exist.
	if maxBsuCount < 2 {
		return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive %q max-bsu-count must be >= 2", d.Name))
	}
	if minUsedPerc >= maxUsedPerc {
		return Drive{}, bsuerrors.New(bsuerrors.ConfigInvalid, "config.resolveDrive", fmt.Errorf("drive %q min-used-space-perc must be < max-used-space-perc", d.Name))
	}

	return Drive{
		Name:                d.Name,
		Target:              target,
		MountPath:           d.MountPath,
		DiskType:            diskType,
		DiskIOPSPerGiB:      d.DiskIOPSPerGiB,
		InitialSizeGiB:      initialSizeGiB,
		MaxBsuCount:         maxBsuCount,
		MaxTotalSizeGiB:     d.MaxTotalSizeGiB,
		MaxUsedSpaceFrac:    float64(maxUsedPerc) / 100,
		MinUsedSpaceFrac:    float64(minUsedPerc) / 100,
		DiskScaleFactorFrac: float64(scaleFactorPerc) / 100,
	}, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
