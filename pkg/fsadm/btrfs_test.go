package fsadm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mountutils "k8s.io/mount-utils"

	"github.com/outscale/bsud/pkg/bsuerrors"
)

type fakeMounter struct {
	points      []mountutils.MountPoint
	mountErr    error
	unmountErr  error
	mountCalls  int
	unmountPath string
}

func (f *fakeMounter) List() ([]mountutils.MountPoint, error) { return f.points, nil }

func (f *fakeMounter) Mount(source, target, fstype string, options []string) error {
	f.mountCalls++
	return f.mountErr
}

func (f *fakeMounter) Unmount(target string) error {
	f.unmountPath = target
	return f.unmountErr
}

func TestIsMountedNotMountedAtAll(t *testing.T) {
	m := &fakeMounter{}
	mounted, err := IsMounted(m, "/dev/mapper/data-bsud", "/mnt/data")
	require.NoError(t, err)
	assert.False(t, mounted)
}

func TestIsMountedExactTarget(t *testing.T) {
	m := &fakeMounter{points: []mountutils.MountPoint{{Device: "/dev/mapper/data-bsud", Path: "/mnt/data"}}}
	mounted, err := IsMounted(m, "/dev/mapper/data-bsud", "/mnt/data")
	require.NoError(t, err)
	assert.True(t, mounted)
}

func TestIsMountedElsewhereFails(t *testing.T) {
	m := &fakeMounter{points: []mountutils.MountPoint{{Device: "/dev/mapper/data-bsud", Path: "/mnt/other"}}}
	_, err := IsMounted(m, "/dev/mapper/data-bsud", "/mnt/data")
	require.Error(t, err)
	assert.True(t, bsuerrors.Is(err, bsuerrors.InvariantViolation))
	assert.True(t, errors.Is(err, ErrMountedElsewhere))
}

func TestMountWrapsError(t *testing.T) {
	m := &fakeMounter{mountErr: errors.New("boom")}
	err := Mount(m, "/dev/mapper/data-bsud", "/mnt/data")
	require.Error(t, err)
	assert.Equal(t, 1, m.mountCalls)
}

func TestUmountCallsUnderlying(t *testing.T) {
	m := &fakeMounter{}
	require.NoError(t, Umount(m, "/mnt/data"))
	assert.Equal(t, "/mnt/data", m.unmountPath)
}
