// Package fsadm adapts the btrfs filesystem sitting on a drive's logical
// volume: formatting, mounting, growing/shrinking, and reading live size /
// used / available statistics.
package fsadm

import (
	"context"
	"errors"
	"os"
	"strconv"

	mountutils "k8s.io/mount-utils"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/executil"
)

// probeBytes is how much of the device's head bsud inspects to decide
// whether it already carries a filesystem.
const probeBytes = 1 << 20 // 1 MiB

// LooksFormatted reads the leading probeBytes of device and reports true
// iff any non-zero byte is seen among the bytes actually read (a device
// shorter than probeBytes is still checked over what's available).
func LooksFormatted(device string) (bool, error) {
	f, err := os.Open(device)
	if err != nil {
		return false, bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.LooksFormatted", err)
	}
	defer f.Close()

	buf := make([]byte, probeBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false, bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.LooksFormatted", err)
	}
	for _, b := range buf[:n] {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

// Format runs mkfs.btrfs on device.
func Format(ctx context.Context, device string) error {
	_, err := executil.RunStrict(ctx, "mkfs.btrfs", device)
	return err
}

// IsFolder reports whether path exists and is a directory.
func IsFolder(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CreateFolder creates a single directory level at path (not recursive —
// the parent is expected to already exist, matching the original's
// single-level create_dir call).
func CreateFolder(path string) error {
	if err := os.Mkdir(path, 0o755); err != nil {
		return bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.CreateFolder", err)
	}
	return nil
}

// ErrMountedElsewhere means device is mounted, but not at the target this
// caller expected — a configuration or crash-recovery inconsistency the
// reconciler cannot silently paper over.
var ErrMountedElsewhere = errors.New("device is mounted at an unexpected target")

// Mounter abstracts k8s.io/mount-utils' mount.Interface so tests can fake
// the kernel mount table.
type Mounter interface {
	List() ([]mountutils.MountPoint, error)
	Mount(source, target, fstype string, options []string) error
	Unmount(target string) error
}

// NewMounter returns the real OS mounter.
func NewMounter() Mounter {
	return mountutils.New("")
}

// IsMounted reports whether device is mounted, and whether it is mounted
// exactly at target. It returns (false, nil) if device is not mounted at
// all, (true, nil) if mounted exactly at target, and (false,
// ErrMountedElsewhere) if mounted somewhere else.
func IsMounted(m Mounter, device, target string) (bool, error) {
	points, err := m.List()
	if err != nil {
		return false, bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.IsMounted", err)
	}
	for _, p := range points {
		if p.Device != device {
			continue
		}
		if p.Path == target {
			return true, nil
		}
		return false, bsuerrors.New(bsuerrors.InvariantViolation, "fsadm.IsMounted", ErrMountedElsewhere)
	}
	return false, nil
}

// Mount mounts device at target as btrfs.
func Mount(m Mounter, device, target string) error {
	if err := m.Mount(device, target, "btrfs", nil); err != nil {
		return bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.Mount", err)
	}
	return nil
}

// Umount unmounts target.
func Umount(m Mounter, target string) error {
	if err := m.Unmount(target); err != nil {
		return bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.Umount", err)
	}
	return nil
}

// GrowToMax extends the filesystem mounted at target to the full size of
// its backing logical volume.
func GrowToMax(ctx context.Context, target string) error {
	_, err := executil.RunStrict(ctx, "btrfs", "filesystem", "resize", "max", target)
	return err
}

// Resize shrinks or grows the filesystem mounted at target to exactly
// sizeBytes (a plain decimal byte count, no unit suffix).
func Resize(ctx context.Context, target string, sizeBytes int64) error {
	_, err := executil.RunStrict(ctx, "btrfs", "filesystem", "resize", strconv.FormatInt(sizeBytes, 10), target)
	return err
}
