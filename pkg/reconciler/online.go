package reconciler

import (
	"context"
	"fmt"

	"github.com/outscale/bsud/pkg/bsuerrors"
)

// reconcileOnline converges a drive to: owned volumes attached to this VM,
// their PVs in a single VG, a single LV spanning the whole VG, a btrfs
// filesystem mounted at the configured path and extended to fill the LV —
// then applies the growth/shrink policy and restarts from the top whenever
// a volume is added or removed, since every earlier step may need to run
// again against the new device set.
func (d *Drive) reconcileOnline(ctx context.Context) error {
	vgName := d.cfg.Name

	for {
		if err := d.earlyExit(); err != nil {
			return err
		}
		// Resume any pvmove left running by a previous process that died
		// mid-migration. Crash-safe by construction: this is always the
		// first thing a reconcile pass does.
		_ = d.lvm.PVMoveAll(ctx)

		if err := d.earlyExit(); err != nil {
			return err
		}
		if err := d.fetchAllVolumes(ctx); err != nil {
			return err
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for !d.areVolumesAttached() {
			if err := d.attachMissingVolumes(ctx); err != nil {
				return err
			}
			if err := d.fetchAllVolumes(ctx); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		if len(d.allVolumes) == 0 {
			if err := d.createInitialVolume(ctx); err != nil {
				return err
			}
			continue
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for !d.arePVsInitialized(ctx) {
			if err := d.initMissingPVs(ctx); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		_ = d.lvm.ScanVGs(ctx)

		if err := d.earlyExit(); err != nil {
			return err
		}
		for {
			created, err := d.isVGCreated(ctx, vgName)
			if err != nil {
				return err
			}
			if created {
				break
			}
			if err := d.createVG(ctx, vgName); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		_ = d.lvm.ActivateVG(ctx, true, vgName)

		if err := d.earlyExit(); err != nil {
			return err
		}
		for !d.isVGExtended(ctx, vgName) {
			if err := d.extendVG(ctx, vgName); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for {
			created, err := d.isLVCreated(ctx, vgName)
			if err != nil {
				return err
			}
			if created {
				break
			}
			if err := d.lvm.CreateLV(ctx, vgName); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		_ = d.lvm.ActivateLV(ctx, true, vgName)

		if err := d.earlyExit(); err != nil {
			return err
		}
		if err := d.extendLV(ctx, vgName); err != nil {
			return err
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for {
			formatted, err := d.isFSFormatted(vgName)
			if err != nil {
				return err
			}
			if formatted {
				break
			}
			if err := d.fs.Format(ctx, lvPath(vgName)); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for !d.fs.IsFolder(d.cfg.MountPath) {
			if err := d.fs.CreateFolder(d.cfg.MountPath); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for {
			mounted, err := d.fs.IsMounted(lvPath(vgName), d.cfg.MountPath)
			if err != nil {
				return err
			}
			if mounted {
				break
			}
			if err := d.fs.Mount(lvPath(vgName), d.cfg.MountPath); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		for {
			extended, err := d.isFSExtended(ctx, vgName)
			if err != nil {
				return err
			}
			if extended {
				break
			}
			if err := d.fsExtend(ctx); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		if d.isDriveReachedMaxAttachedVolumes() {
			if err := d.removeSmallestVolume(ctx); err != nil {
				return err
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
			continue
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		lowSpace, err := d.isDriveLowSpaceLeft()
		if err != nil {
			return err
		}
		if lowSpace {
			if d.isMaxSpaceReached() {
				return nil
			}
			if !d.isDriveReachedMaxAttachedVolumesMinusOne() && !d.isDriveContainsSmallestVolume() {
				if err := d.createSmallerVolume(ctx); err != nil {
					return err
				}
			} else if err := d.createLargerVolume(ctx); err != nil {
				return err
			}
			continue
		}

		if err := d.earlyExit(); err != nil {
			return err
		}
		highSpace, err := d.isDriveHighSpaceLeft()
		if err != nil {
			return err
		}
		if highSpace {
			if len(d.allVolumes) > 1 {
				if err := d.removeLargestVolume(ctx); err != nil {
					return err
				}
			} else {
				if d.hasMinimalSize() {
					return nil
				}
				if err := d.createIdealVolume(ctx, vgName); err != nil {
					return err
				}
			}
			if err := d.earlyExit(); err != nil {
				return err
			}
			continue
		}

		return nil
	}
}

// fetchAllVolumes refreshes the drive's view of every volume the cloud
// reports as tagged to it, usable states only.
func (d *Drive) fetchAllVolumes(ctx context.Context) error {
	volumes, err := d.cloud.ListByDrive(ctx, d.cfg.Name)
	if err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOnline.fetchAllVolumes", err)
	}
	d.allVolumes = volumes
	d.logger.Info().Int("count", len(volumes)).Msg("fetched volumes")
	return nil
}

// areVolumesAttached reports whether every owned volume is attached to
// this VM and its device node has appeared locally.
func (d *Drive) areVolumesAttached() bool {
	ok := true
	for _, v := range d.allVolumes {
		if v.Attachment == nil {
			d.logger.Debug().Str("volume", v.ID).Msg("volume not attached to any VM")
			ok = false
			continue
		}
		if v.Attachment.VMID != d.vmID {
			d.logger.Debug().Str("volume", v.ID).Str("vm", v.Attachment.VMID).Msg("volume attached to a different VM")
			ok = false
			continue
		}
		if v.Attachment.DevicePath == "" {
			d.logger.Debug().Str("volume", v.ID).Msg("volume has no device path yet")
			ok = false
			continue
		}
		if !d.devs.Exists(v.Attachment.DevicePath) {
			d.logger.Debug().Str("volume", v.ID).Str("device", v.Attachment.DevicePath).Msg("device does not exist yet")
			ok = false
			continue
		}
	}
	d.logger.Info().Bool("attached", ok).Msg("are volumes attached")
	return ok
}

// attachMissingVolumes attaches every owned volume not yet attached to
// this VM.
func (d *Drive) attachMissingVolumes(ctx context.Context) error {
	for _, v := range d.allVolumes {
		if v.AttachedTo(d.vmID) {
			continue
		}
		if err := d.cloud.Attach(ctx, v); err != nil {
			return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOnline.attachMissingVolumes", err)
		}
	}
	return nil
}

// createInitialVolume provisions a drive's very first volume.
func (d *Drive) createInitialVolume(ctx context.Context) error {
	return d.createVolumeGiB(ctx, d.cfg.InitialSizeGiB)
}

func (d *Drive) createVolumeGiB(ctx context.Context, sizeGiB int) error {
	if err := d.cloud.Create(ctx, d.cfg.Name, d.cfg.DiskType, d.cfg.DiskIOPSPerGiB, sizeGiB); err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOnline.createVolume", err)
	}
	return nil
}

// arePVsInitialized reports whether every volume's device already carries
// PV metadata, recording the device paths that still need pvcreate.
func (d *Drive) arePVsInitialized(ctx context.Context) bool {
	d.pvToBeInitialized = d.pvToBeInitialized[:0]
	found := d.knownDevices(ctx, true)

	ok := true
	for _, v := range d.allVolumes {
		if v.Attachment == nil || v.Attachment.DevicePath == "" {
			d.logger.Error().Str("volume", v.ID).Msg("volume has no local device path, please report")
			continue
		}
		if !found[v.Attachment.DevicePath] {
			d.logger.Info().Str("volume", v.ID).Str("device", v.Attachment.DevicePath).Msg("volume not yet pv initialized")
			d.pvToBeInitialized = append(d.pvToBeInitialized, v.Attachment.DevicePath)
			ok = false
		}
	}
	return ok
}

// knownDevices collects every PV device path LVM currently knows about,
// unassigned plus (when includeOwnVG) already in this drive's VG.
func (d *Drive) knownDevices(ctx context.Context, includeOwnVG bool) map[string]bool {
	found := map[string]bool{}
	if r, ok, err := d.lvm.ReportUnassigned(ctx); err == nil && ok {
		for _, dev := range r.Devices() {
			found[dev] = true
		}
	}
	if includeOwnVG {
		if r, ok, err := d.lvm.ReportFor(ctx, d.cfg.Name); err == nil && ok {
			for _, dev := range r.Devices() {
				found[dev] = true
			}
		}
	}
	return found
}

func (d *Drive) initMissingPVs(ctx context.Context) error {
	for _, device := range d.pvToBeInitialized {
		if err := d.lvm.InitPV(ctx, device); err != nil {
			return err
		}
	}
	return nil
}

func (d *Drive) isVGCreated(ctx context.Context, vgName string) (bool, error) {
	_, ok, err := d.lvm.ReportFor(ctx, vgName)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// createVG seeds the VG from any one unassigned PV belonging to this
// drive's volumes.
func (d *Drive) createVG(ctx context.Context, vgName string) error {
	found := d.knownDevices(ctx, false)
	for _, v := range d.allVolumes {
		if v.Attachment == nil {
			continue
		}
		if found[v.Attachment.DevicePath] {
			return d.lvm.CreateVG(ctx, vgName, v.Attachment.DevicePath)
		}
	}
	return bsuerrors.New(bsuerrors.InvariantViolation, "reconcileOnline.createVG",
		fmt.Errorf("%q drive: no PV found to init VG, please report this error", vgName))
}

// isVGExtended reports whether every unassigned PV belonging to this
// drive's volumes has been folded into its VG, recording which still
// need vgextend.
func (d *Drive) isVGExtended(ctx context.Context, vgName string) bool {
	d.pvToAddToVG = d.pvToAddToVG[:0]
	found := d.knownDevices(ctx, false)

	ok := true
	for _, v := range d.allVolumes {
		if v.Attachment == nil || v.Attachment.DevicePath == "" {
			continue
		}
		if found[v.Attachment.DevicePath] {
			d.pvToAddToVG = append(d.pvToAddToVG, v.Attachment.DevicePath)
			ok = false
		}
	}
	return ok
}

func (d *Drive) extendVG(ctx context.Context, vgName string) error {
	for _, pv := range d.pvToAddToVG {
		if err := d.lvm.ExtendVG(ctx, vgName, pv); err != nil {
			return err
		}
	}
	return nil
}

func (d *Drive) isLVCreated(ctx context.Context, vgName string) (bool, error) {
	r, ok, err := d.lvm.ReportFor(ctx, vgName)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, bsuerrors.New(bsuerrors.InvariantViolation, "reconcileOnline.isLVCreated",
			fmt.Errorf("%q drive: lvm details cannot be found, please report issue", vgName))
	}
	return len(r.LV) > 0, nil
}

// extendLV grows the LV to absorb any free extent left in the VG (e.g.
// after vgextend), matching vgSize against lvSize.
func (d *Drive) extendLV(ctx context.Context, vgName string) error {
	vgSize, err := d.lvm.VGSizeBytes(ctx, vgName)
	if err != nil {
		return err
	}
	lvSize, err := d.lvm.LVSizeBytes(ctx, vgName)
	if err != nil {
		return err
	}
	switch {
	case vgSize > lvSize:
		return d.lvm.ExtendLVFull(ctx, lvPath(vgName))
	case vgSize == lvSize:
		return nil
	default:
		return bsuerrors.New(bsuerrors.InvariantViolation, "reconcileOnline.extendLV",
			fmt.Errorf("%q drive: vg_size (%d) < lv_size (%d)", vgName, vgSize, lvSize))
	}
}

func (d *Drive) isFSFormatted(vgName string) (bool, error) {
	return d.fs.LooksFormatted(lvPath(vgName))
}

func (d *Drive) isFSExtended(ctx context.Context, vgName string) (bool, error) {
	lvSize, err := d.lvm.LVSizeBytes(ctx, vgName)
	if err != nil {
		return false, err
	}
	stats, err := d.fs.Stats(d.cfg.MountPath)
	if err != nil {
		return false, err
	}
	switch {
	case stats.SizeBytes == lvSize:
		return true, nil
	case stats.SizeBytes < lvSize:
		return false, nil
	default:
		return false, bsuerrors.New(bsuerrors.InvariantViolation, "reconcileOnline.isFSExtended",
			fmt.Errorf("%q drive: fs_size > lv_size", vgName))
	}
}

func (d *Drive) fsExtend(ctx context.Context) error {
	return d.fs.GrowToMax(ctx, d.cfg.MountPath)
}
