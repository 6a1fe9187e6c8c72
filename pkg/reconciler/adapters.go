package reconciler

import (
	"context"

	"github.com/outscale/bsud/pkg/cloudvolume"
	"github.com/outscale/bsud/pkg/fsadm"
	"github.com/outscale/bsud/pkg/lvm"
)

// CloudClient is the subset of pkg/cloudvolume.Client the staircase
// consumes. It exists so reconciler tests can substitute a fake cloud
// without a real Outscale endpoint.
type CloudClient interface {
	ListByDrive(ctx context.Context, name string) ([]cloudvolume.Volume, error)
	Create(ctx context.Context, driveName string, t cloudvolume.DiskType, iopsPerGiB *int, sizeGiB int) error
	Attach(ctx context.Context, v cloudvolume.Volume) error
	Detach(ctx context.Context, v cloudvolume.Volume) error
	Delete(ctx context.Context, v cloudvolume.Volume) error
}

// LVM is the subset of pkg/lvm the staircase consumes.
type LVM interface {
	ReportFor(ctx context.Context, vgName string) (lvm.Report, bool, error)
	ReportUnassigned(ctx context.Context) (lvm.Report, bool, error)
	VGSizeBytes(ctx context.Context, vgName string) (int64, error)
	LVSizeBytes(ctx context.Context, vgName string) (int64, error)
	InitPV(ctx context.Context, path string) error
	CreateVG(ctx context.Context, vgName, initialPV string) error
	ActivateVG(ctx context.Context, activate bool, vgName string) error
	ExtendVG(ctx context.Context, vgName, pvPath string) error
	CreateLV(ctx context.Context, vgName string) error
	ActivateLV(ctx context.Context, activate bool, lvName string) error
	ExtendLVFull(ctx context.Context, lvPath string) error
	ReduceLV(ctx context.Context, lvPath string, newSizeBytes int64) error
	ScanVGs(ctx context.Context) error
	PVMove(ctx context.Context, pvPath string) bool
	PVMoveAll(ctx context.Context) bool
	ReduceVG(ctx context.Context, vgName, devicePath string) error
	RemovePV(ctx context.Context, devicePath string) error
}

// FS is the subset of pkg/fsadm the staircase consumes.
type FS interface {
	LooksFormatted(device string) (bool, error)
	Format(ctx context.Context, device string) error
	IsFolder(path string) bool
	CreateFolder(path string) error
	IsMounted(device, target string) (bool, error)
	Mount(device, target string) error
	Umount(target string) error
	GrowToMax(ctx context.Context, target string) error
	Resize(ctx context.Context, target string, sizeBytes int64) error
	Stats(target string) (fsadm.Stats, error)
}

// packageLVM adapts pkg/lvm's free functions to the LVM interface.
type packageLVM struct{}

func (packageLVM) ReportFor(ctx context.Context, vgName string) (lvm.Report, bool, error) {
	return lvm.ReportFor(ctx, vgName)
}
func (packageLVM) ReportUnassigned(ctx context.Context) (lvm.Report, bool, error) {
	return lvm.ReportUnassigned(ctx)
}
func (packageLVM) VGSizeBytes(ctx context.Context, vgName string) (int64, error) {
	return lvm.VGSizeBytes(ctx, vgName)
}
func (packageLVM) LVSizeBytes(ctx context.Context, vgName string) (int64, error) {
	return lvm.LVSizeBytes(ctx, vgName)
}
func (packageLVM) InitPV(ctx context.Context, path string) error { return lvm.InitPV(ctx, path) }
func (packageLVM) CreateVG(ctx context.Context, vgName, initialPV string) error {
	return lvm.CreateVG(ctx, vgName, initialPV)
}
func (packageLVM) ActivateVG(ctx context.Context, activate bool, vgName string) error {
	return lvm.ActivateVG(ctx, activate, vgName)
}
func (packageLVM) ExtendVG(ctx context.Context, vgName, pvPath string) error {
	return lvm.ExtendVG(ctx, vgName, pvPath)
}
func (packageLVM) CreateLV(ctx context.Context, vgName string) error { return lvm.CreateLV(ctx, vgName) }
func (packageLVM) ActivateLV(ctx context.Context, activate bool, lvName string) error {
	return lvm.ActivateLV(ctx, activate, lvName)
}
func (packageLVM) ExtendLVFull(ctx context.Context, lvPath string) error {
	return lvm.ExtendLVFull(ctx, lvPath)
}
func (packageLVM) ReduceLV(ctx context.Context, lvPath string, newSizeBytes int64) error {
	return lvm.ReduceLV(ctx, lvPath, newSizeBytes)
}
func (packageLVM) ScanVGs(ctx context.Context) error { return lvm.ScanVGs(ctx) }
func (packageLVM) PVMove(ctx context.Context, pvPath string) bool { return lvm.PVMove(ctx, pvPath) }
func (packageLVM) PVMoveAll(ctx context.Context) bool             { return lvm.PVMoveAll(ctx) }
func (packageLVM) ReduceVG(ctx context.Context, vgName, devicePath string) error {
	return lvm.ReduceVG(ctx, vgName, devicePath)
}
func (packageLVM) RemovePV(ctx context.Context, devicePath string) error {
	return lvm.RemovePV(ctx, devicePath)
}

// NewLVM returns the LVM adapter backed by the real lvm package.
func NewLVM() LVM { return packageLVM{} }

// packageFS adapts pkg/fsadm to the FS interface, holding the one
// mounter instance the drive uses for every mount-table lookup.
type packageFS struct {
	mounter fsadm.Mounter
}

func (p packageFS) LooksFormatted(device string) (bool, error) { return fsadm.LooksFormatted(device) }
func (p packageFS) Format(ctx context.Context, device string) error {
	return fsadm.Format(ctx, device)
}
func (p packageFS) IsFolder(path string) bool       { return fsadm.IsFolder(path) }
func (p packageFS) CreateFolder(path string) error  { return fsadm.CreateFolder(path) }
func (p packageFS) IsMounted(device, target string) (bool, error) {
	return fsadm.IsMounted(p.mounter, device, target)
}
func (p packageFS) Mount(device, target string) error { return fsadm.Mount(p.mounter, device, target) }
func (p packageFS) Umount(target string) error         { return fsadm.Umount(p.mounter, target) }
func (p packageFS) GrowToMax(ctx context.Context, target string) error {
	return fsadm.GrowToMax(ctx, target)
}
func (p packageFS) Resize(ctx context.Context, target string, sizeBytes int64) error {
	return fsadm.Resize(ctx, target, sizeBytes)
}
func (p packageFS) Stats(target string) (fsadm.Stats, error) { return fsadm.ReadStats(target) }

// NewFS returns the FS adapter backed by the real fsadm package.
func NewFS() FS { return packageFS{mounter: fsadm.NewMounter()} }
