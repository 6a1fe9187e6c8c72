package reconciler

import (
	"context"
	"fmt"
	"math"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/cloudvolume"
)

// maxVolumeSizeGiB is the Outscale API's ceiling for a single block
// volume's size.
const maxVolumeSizeGiB = 14901

const gibBytes = 1 << 30

func gibToBytes(gib int) int64 { return int64(gib) * gibBytes }

func bytesToGibRounded(b int64) int {
	return int(math.Ceil(float64(b) / gibBytes))
}

func (d *Drive) allVolumesSizeGiB() int {
	var total int64
	for _, v := range d.allVolumes {
		total += gibToBytes(v.SizeGiB)
	}
	return bytesToGibRounded(total)
}

func (d *Drive) largestVolume() cloudvolume.Volume {
	var largest cloudvolume.Volume
	largestSize := -1
	for _, v := range d.allVolumes {
		if v.SizeGiB > largestSize {
			largest = v
			largestSize = v.SizeGiB
		}
	}
	return largest
}

func (d *Drive) smallestVolume() cloudvolume.Volume {
	var smallest cloudvolume.Volume
	smallestSize := -1
	for _, v := range d.allVolumes {
		if smallestSize == -1 || v.SizeGiB < smallestSize {
			smallest = v
			smallestSize = v.SizeGiB
		}
	}
	return smallest
}

func (d *Drive) isDriveReachedMaxAttachedVolumes() bool {
	return len(d.allVolumes) >= d.cfg.MaxBsuCount
}

func (d *Drive) isDriveReachedMaxAttachedVolumesMinusOne() bool {
	return len(d.allVolumes) == d.cfg.MaxBsuCount-1
}

func (d *Drive) isDriveContainsSmallestVolume() bool {
	return d.smallestVolume().SizeGiB <= d.cfg.InitialSizeGiB
}

func (d *Drive) createLargerVolume(ctx context.Context) error {
	largest := float64(d.largestVolume().SizeGiB)
	newSize := int(math.Ceil(largest + largest*d.cfg.DiskScaleFactorFrac))
	if newSize > maxVolumeSizeGiB {
		newSize = maxVolumeSizeGiB
	}
	return d.createVolumeGiB(ctx, newSize)
}

func (d *Drive) createSmallerVolume(ctx context.Context) error {
	smallest := float64(d.smallestVolume().SizeGiB)
	newSize := int(math.Ceil(smallest - smallest*d.cfg.DiskScaleFactorFrac))
	if newSize < d.cfg.InitialSizeGiB {
		newSize = d.cfg.InitialSizeGiB
	}
	return d.createVolumeGiB(ctx, newSize)
}

func (d *Drive) isDriveLowSpaceLeft() (bool, error) {
	stats, err := d.fs.Stats(d.cfg.MountPath)
	if err != nil {
		return false, err
	}
	used := stats.UsedFraction()
	ret := used >= d.cfg.MaxUsedSpaceFrac
	d.logger.Debug().Float64("used_frac", used).Float64("max_used_frac", d.cfg.MaxUsedSpaceFrac).Msg("drive space usage")
	return ret, nil
}

func (d *Drive) isDriveHighSpaceLeft() (bool, error) {
	stats, err := d.fs.Stats(d.cfg.MountPath)
	if err != nil {
		return false, err
	}
	used := stats.UsedFraction()
	ret := used <= d.cfg.MinUsedSpaceFrac
	return ret, nil
}

func (d *Drive) isMaxSpaceReached() bool {
	if d.cfg.MaxTotalSizeGiB == nil {
		return false
	}
	return d.allVolumesSizeGiB() >= *d.cfg.MaxTotalSizeGiB
}

func (d *Drive) hasMinimalSize() bool {
	return d.allVolumesSizeGiB() == d.cfg.InitialSizeGiB
}

// idealSizeBytes is the filesystem size that would put used space exactly
// in the middle of [min_used_space, max_used_space], clamped to the
// initial size floor and the current filesystem size ceiling.
func (d *Drive) idealSizeBytes() (int64, error) {
	stats, err := d.fs.Stats(d.cfg.MountPath)
	if err != nil {
		return 0, err
	}
	middle := (d.cfg.MinUsedSpaceFrac + d.cfg.MaxUsedSpaceFrac) / 2
	ideal := int64(math.Ceil(float64(stats.UsedBytes) / middle))
	if floor := gibToBytes(d.cfg.InitialSizeGiB); ideal < floor {
		ideal = floor
	}
	if ideal > stats.SizeBytes {
		ideal = stats.SizeBytes
	}
	return ideal, nil
}

func (d *Drive) createIdealVolume(ctx context.Context, vgName string) error {
	ideal, err := d.idealSizeBytes()
	if err != nil {
		return err
	}
	idealGiB := bytesToGibRounded(ideal)
	d.logger.Info().Str("drive", vgName).Int("size_gib", idealGiB).Msg("create ideal-fit volume")
	return d.createVolumeGiB(ctx, idealGiB)
}

func (d *Drive) removeSmallestVolume(ctx context.Context) error {
	return d.removeVolume(ctx, d.smallestVolume())
}

func (d *Drive) removeLargestVolume(ctx context.Context) error {
	return d.removeVolume(ctx, d.largestVolume())
}

// removeVolume shrinks the filesystem and LV off v's PV, migrates its
// extents away, removes it from the VG, and detaches and deletes the
// cloud volume. Shrinking the filesystem more than strictly required (down
// toward the ideal size, when there's room) helps pvmove have less live
// data to relocate.
func (d *Drive) removeVolume(ctx context.Context, v cloudvolume.Volume) error {
	vgName := d.cfg.Name
	d.logger.Info().Str("volume", v.ID).Int("size_gib", v.SizeGiB).Msg("removing volume")

	volBytes := gibToBytes(v.SizeGiB)
	stats, err := d.fs.Stats(d.cfg.MountPath)
	if err != nil {
		return err
	}
	if stats.AvailableBytes < volBytes {
		return bsuerrors.New(bsuerrors.InvariantViolation, "reconcileOnline.removeVolume",
			fmt.Errorf("%q drive: cannot remove volume: free space left %d bytes, volume size %d bytes", vgName, stats.AvailableBytes, volBytes))
	}
	if v.Attachment == nil || v.Attachment.DevicePath == "" {
		return bsuerrors.New(bsuerrors.InvariantViolation, "reconcileOnline.removeVolume",
			fmt.Errorf("%q drive: cannot find device path for volume %s", vgName, v.ID))
	}
	devicePath := v.Attachment.DevicePath

	ideal, err := d.idealSizeBytes()
	if err != nil {
		return err
	}
	largestPossible := stats.SizeBytes - volBytes
	newFSBytes := largestPossible
	if ideal < newFSBytes {
		newFSBytes = ideal
	}

	if err := d.fs.Resize(ctx, d.cfg.MountPath, newFSBytes); err != nil {
		return err
	}
	if err := d.lvm.ReduceLV(ctx, lvPath(vgName), newFSBytes); err != nil {
		return err
	}
	d.lvm.PVMove(ctx, devicePath)
	if err := d.lvm.ReduceVG(ctx, vgName, devicePath); err != nil {
		return err
	}
	if err := d.lvm.RemovePV(ctx, devicePath); err != nil {
		return err
	}
	// Once the PV is off the VG, grow lv/fs back to absorb whatever is left.
	if err := d.extendLV(ctx, vgName); err != nil {
		return err
	}
	if err := d.fsExtend(ctx); err != nil {
		return err
	}

	if err := d.cloud.Detach(ctx, v); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOnline.removeVolume", err)
	}
	if err := d.cloud.Delete(ctx, v); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOnline.removeVolume", err)
	}
	return nil
}
