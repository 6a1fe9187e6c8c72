// Package reconciler implements the per-drive state machine: the online
// reconcile staircase, the offline/delete pipelines, and the growth/
// shrink policy that decides which volume to add or remove and at what
// size.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/cloudvolume"
	"github.com/outscale/bsud/pkg/config"
	"github.com/outscale/bsud/pkg/device"
	"github.com/outscale/bsud/pkg/log"
	"github.com/outscale/bsud/pkg/lvm"
)

// TCooldown is the minimum interval between two reconcile ticks.
const TCooldown = 30 * time.Second

// idlePoll is how often the cooldown loop checks for a stop command.
const idlePoll = 10 * time.Millisecond

// Drive owns all desired/observed state for one drive and runs its
// reconcile loop on its own goroutine. It is never touched by any other
// drive's worker.
type Drive struct {
	cfg    config.Drive
	vmID   string
	cloud  CloudClient
	lvm    LVM
	fs     FS
	devs   device.Exister
	logger zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}

	lastReconcile time.Time

	// Scratch state rebuilt at the top of every online reconcile pass.
	allVolumes        []cloudvolume.Volume
	pvToBeInitialized []string
	pvToAddToVG       []string
}

// New builds a reconciler for one configured drive.
func New(cfg config.Drive, vmID string, cloud CloudClient, lvmAdapter LVM, fsAdapter FS) *Drive {
	return &Drive{
		cfg:    cfg,
		vmID:   vmID,
		cloud:  cloud,
		lvm:    lvmAdapter,
		fs:     fsAdapter,
		devs:   device.OSExister{},
		logger: log.WithDrive(cfg.Name),
		stopCh: make(chan struct{}),
	}
}

// withDeviceExister overrides the device-existence probe; exported only to
// tests in this package, which fake the /dev namespace.
func (d *Drive) withDeviceExister(e device.Exister) *Drive {
	d.devs = e
	return d
}

// Stop requests the reconciler's loop to exit. Safe to call more than
// once and from any goroutine.
func (d *Drive) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// stopped reports whether a stop command has arrived, without blocking.
func (d *Drive) stopped() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

// earlyExit is the cooperative cancellation check the staircase polls
// between every significant step.
func (d *Drive) earlyExit() error {
	if d.stopped() {
		return bsuerrors.ErrEarlyExit
	}
	return nil
}

// Run is the per-drive worker loop: at most one reconcile per TCooldown,
// an idle poll in between so a stop command is noticed quickly.
func (d *Drive) Run(ctx context.Context) {
	for {
		if d.stopped() {
			d.logger.Info().Msg("drive worker stopped")
			return
		}
		if time.Since(d.lastReconcile) <= TCooldown {
			time.Sleep(idlePoll)
			continue
		}
		if err := d.reconcile(ctx); err != nil {
			if bsuerrors.Is(err, bsuerrors.EarlyExit) {
				d.logger.Info().Msg("reconcile interrupted by stop command")
			} else {
				d.logger.Error().Err(err).Msg("reconcile cycle failed")
			}
		}
		d.lastReconcile = time.Now()
		if d.stopped() {
			d.logger.Info().Msg("drive worker stopped")
			return
		}
	}
}

// reconcile dispatches to the pipeline matching the drive's target.
func (d *Drive) reconcile(ctx context.Context) error {
	switch d.cfg.Target {
	case config.TargetOnline:
		return d.reconcileOnline(ctx)
	case config.TargetOffline:
		return d.reconcileOffline(ctx)
	case config.TargetDelete:
		return d.reconcileDelete(ctx)
	default:
		return bsuerrors.New(bsuerrors.ConfigInvalid, "reconcile", errUnknownTarget(d.cfg.Target))
	}
}

type unknownTargetErr struct{ target config.Target }

func (e unknownTargetErr) Error() string { return "unknown drive target: " + string(e.target) }

func errUnknownTarget(t config.Target) error { return unknownTargetErr{target: t} }

// reconcileDelete converges to Offline, then deletes every owned volume.
func (d *Drive) reconcileDelete(ctx context.Context) error {
	if err := d.reconcileOffline(ctx); err != nil {
		return err
	}
	if err := d.earlyExit(); err != nil {
		return err
	}
	volumes, err := d.cloud.ListByDrive(ctx, d.cfg.Name)
	if err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileDelete", err)
	}
	for _, v := range volumes {
		if err := d.earlyExit(); err != nil {
			return err
		}
		if err := d.cloud.Delete(ctx, v); err != nil {
			return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileDelete", err)
		}
	}
	return nil
}

// reconcileOffline converges to: unmounted, LV/VG deactivated, every
// volume owned by this drive detached from this VM. Volumes attached to
// another VM are left alone (skipped with a warning).
func (d *Drive) reconcileOffline(ctx context.Context) error {
	vgName := d.cfg.Name

	for {
		if err := d.earlyExit(); err != nil {
			return err
		}
		mounted, err := d.fs.IsMounted(lvPath(vgName), d.cfg.MountPath)
		if err != nil {
			return err
		}
		if !mounted {
			break
		}
		if err := d.fs.Umount(d.cfg.MountPath); err != nil {
			return err
		}
	}

	_ = d.lvm.ActivateLV(ctx, false, vgName)
	_ = d.lvm.ActivateVG(ctx, false, vgName)

	if err := d.earlyExit(); err != nil {
		return err
	}
	volumes, err := d.cloud.ListByDrive(ctx, d.cfg.Name)
	if err != nil {
		return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOffline", err)
	}
	if len(volumes) == 0 {
		// No owned volumes at all: nothing to detach, and no VG to rescan.
		return nil
	}

	for {
		if err := d.earlyExit(); err != nil {
			return err
		}
		volumes, err := d.cloud.ListByDrive(ctx, d.cfg.Name)
		if err != nil {
			return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOffline", err)
		}

		var attachedHere []cloudvolume.Volume
		var skippedElsewhere int
		for _, v := range volumes {
			if v.Attachment == nil {
				continue
			}
			if v.AttachedTo(d.vmID) {
				attachedHere = append(attachedHere, v)
			} else {
				skippedElsewhere++
			}
		}
		if skippedElsewhere > 0 {
			d.logger.Warn().Int("count", skippedElsewhere).Msg("volumes attached to another VM left alone")
		}
		if len(attachedHere) == 0 {
			break
		}
		for _, v := range attachedHere {
			if err := d.earlyExit(); err != nil {
				return err
			}
			if err := d.cloud.Detach(ctx, v); err != nil {
				return bsuerrors.New(bsuerrors.CloudUnavailable, "reconcileOffline", err)
			}
		}
	}

	_ = d.lvm.ScanVGs(ctx)
	return nil
}

func lvPath(driveName string) string {
	return lvm.LVPath(driveName)
}
