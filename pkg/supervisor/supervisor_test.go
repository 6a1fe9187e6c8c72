package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outscale/bsud/pkg/cloudvolume"
	"github.com/outscale/bsud/pkg/config"
	"github.com/outscale/bsud/pkg/fsadm"
	"github.com/outscale/bsud/pkg/lvm"
)

const testVMID = "i-test0001"

// noopCloud answers every call with no volumes and no errors, enough to let
// an offline-target drive's reconcile loop converge instantly and repeatedly.
type noopCloud struct{}

func (noopCloud) ListByDrive(ctx context.Context, name string) ([]cloudvolume.Volume, error) {
	return nil, nil
}
func (noopCloud) Create(ctx context.Context, driveName string, t cloudvolume.DiskType, iopsPerGiB *int, sizeGiB int) error {
	return nil
}
func (noopCloud) Attach(ctx context.Context, v cloudvolume.Volume) error { return nil }
func (noopCloud) Detach(ctx context.Context, v cloudvolume.Volume) error { return nil }
func (noopCloud) Delete(ctx context.Context, v cloudvolume.Volume) error { return nil }

type noopLVM struct{}

func (noopLVM) ReportFor(ctx context.Context, vgName string) (lvm.Report, bool, error) {
	return lvm.Report{}, false, nil
}
func (noopLVM) ReportUnassigned(ctx context.Context) (lvm.Report, bool, error) {
	return lvm.Report{}, false, nil
}
func (noopLVM) VGSizeBytes(ctx context.Context, vgName string) (int64, error) { return 0, nil }
func (noopLVM) LVSizeBytes(ctx context.Context, vgName string) (int64, error) { return 0, nil }
func (noopLVM) InitPV(ctx context.Context, path string) error                 { return nil }
func (noopLVM) CreateVG(ctx context.Context, vgName, initialPV string) error  { return nil }
func (noopLVM) ActivateVG(ctx context.Context, activate bool, vgName string) error {
	return nil
}
func (noopLVM) ExtendVG(ctx context.Context, vgName, pvPath string) error { return nil }
func (noopLVM) CreateLV(ctx context.Context, vgName string) error        { return nil }
func (noopLVM) ActivateLV(ctx context.Context, activate bool, lvName string) error {
	return nil
}
func (noopLVM) ExtendLVFull(ctx context.Context, lvPath string) error                 { return nil }
func (noopLVM) ReduceLV(ctx context.Context, lvPath string, newSizeBytes int64) error { return nil }
func (noopLVM) ScanVGs(ctx context.Context) error                                     { return nil }
func (noopLVM) PVMove(ctx context.Context, pvPath string) bool                        { return true }
func (noopLVM) PVMoveAll(ctx context.Context) bool                                    { return true }
func (noopLVM) ReduceVG(ctx context.Context, vgName, devicePath string) error         { return nil }
func (noopLVM) RemovePV(ctx context.Context, devicePath string) error                 { return nil }

type noopFS struct{}

func (noopFS) LooksFormatted(device string) (bool, error)       { return true, nil }
func (noopFS) Format(ctx context.Context, device string) error  { return nil }
func (noopFS) IsFolder(path string) bool                        { return true }
func (noopFS) CreateFolder(path string) error                   { return nil }
func (noopFS) IsMounted(device, target string) (bool, error)    { return false, nil }
func (noopFS) Mount(device, target string) error                { return nil }
func (noopFS) Umount(target string) error                       { return nil }
func (noopFS) GrowToMax(ctx context.Context, target string) error { return nil }
func (noopFS) Resize(ctx context.Context, target string, sizeBytes int64) error {
	return nil
}
func (noopFS) Stats(target string) (fsadm.Stats, error) { return fsadm.Stats{}, nil }

func testConfig() config.Config {
	return config.Config{
		AccessKey: "ak",
		SecretKey: "sk",
		Drives: []config.Drive{
			{Name: "data", Target: config.TargetOffline, MountPath: "/mnt/data", DiskType: cloudvolume.Gp2, InitialSizeGiB: 10, MaxBsuCount: 3},
			{Name: "logs", Target: config.TargetOffline, MountPath: "/mnt/logs", DiskType: cloudvolume.Gp2, InitialSizeGiB: 10, MaxBsuCount: 3},
		},
	}
}

func TestNewBuildsOneDriveWorkerPerConfiguredDrive(t *testing.T) {
	s := New(testConfig(), testVMID, noopCloud{}, noopLVM{}, noopFS{})
	assert.ElementsMatch(t, []string{"data", "logs"}, s.DriveNames())
}

func TestRunStopsAllDrivesOnContextCancel(t *testing.T) {
	s := New(testConfig(), testVMID, noopCloud{}, noopLVM{}, noopFS{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestStopIsIdempotentAndWaitsForEveryDrive(t *testing.T) {
	s := New(testConfig(), testVMID, noopCloud{}, noopLVM{}, noopFS{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop() // must not panic or block a second time
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.True(t, true)
}
