// Package lvm wraps the host's LVM toolchain: it parses the structured
// "full report" LVM itself can emit as JSON, and issues the handful of
// mutating commands (pvcreate, vgcreate, vgextend, lvcreate, ...) the
// reconciler staircase needs, each as a thin exec wrapper.
package lvm

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/outscale/bsud/pkg/bsuerrors"
	"github.com/outscale/bsud/pkg/executil"
)

// LVName is the single logical volume name every drive's VG carries.
const LVName = "bsud"

// LVPath returns the deterministic device-mapper path for a drive's
// logical volume: every '-' in the VG name (== drive name) is doubled,
// matching the kernel's own device-mapper naming rule.
func LVPath(driveName string) string {
	escaped := strings.ReplaceAll(driveName, "-", "--")
	return "/dev/mapper/" + escaped + "-" + LVName
}

// Report is one entry of `lvm fullreport --reportformat json`'s "report"
// array: the VG/PV/LV/segment state for one volume group, or — when Vg is
// empty — the bucket of physical volumes not yet assigned to any VG.
type Report struct {
	VG    []VG    `json:"vg"`
	PV    []PV    `json:"pv"`
	LV    []LV    `json:"lv"`
	PVSeg []PVSeg `json:"pvseg"`
	Seg   []Seg   `json:"seg"`
}

// Devices returns every PV device path present in this report entry.
func (r Report) Devices() []string {
	devices := make([]string, 0, len(r.PV))
	for _, pv := range r.PV {
		devices = append(devices, pv.PVName)
	}
	return devices
}

type jsonDesc struct {
	Report []Report `json:"report"`
}

// VG mirrors the subset of `lvm fullreport`'s per-VG fields bsud reads.
// All values arrive from LVM as strings, including numeric ones.
type VG struct {
	VGFmt     string `json:"vg_fmt"`
	VGUUID    string `json:"vg_uuid"`
	VGName    string `json:"vg_name"`
	VGAttr    string `json:"vg_attr"`
	VGSize    string `json:"vg_size"`
	VGFree    string `json:"vg_free"`
	PVCount   string `json:"pv_count"`
	LVCount   string `json:"lv_count"`
	VGExtentSize string `json:"vg_extent_size"`
}

// PV mirrors the subset of `lvm fullreport`'s per-PV fields bsud reads.
type PV struct {
	PVFmt   string `json:"pv_fmt"`
	PVUUID  string `json:"pv_uuid"`
	PVName  string `json:"pv_name"`
	DevSize string `json:"dev_size"`
	PVSize  string `json:"pv_size"`
	PVFree  string `json:"pv_free"`
	PVUsed  string `json:"pv_used"`
	PVAttr  string `json:"pv_attr"`
}

// LV mirrors the subset of `lvm fullreport`'s per-LV fields bsud reads.
type LV struct {
	LVUUID     string `json:"lv_uuid"`
	LVName     string `json:"lv_name"`
	LVFullName string `json:"lv_full_name"`
	LVPath     string `json:"lv_path"`
	LVDMPath   string `json:"lv_dm_path"`
	LVAttr     string `json:"lv_attr"`
	LVSize     string `json:"lv_size"`
	LVActive   string `json:"lv_active"`
}

// PVSeg mirrors one physical-volume segment entry.
type PVSeg struct {
	PVSegStart string `json:"pvseg_start"`
	PVSegSize  string `json:"pvseg_size"`
	PVUUID     string `json:"pv_uuid"`
	LVUUID     string `json:"lv_uuid"`
}

// Seg mirrors one logical-volume segment entry.
type Seg struct {
	SegType  string `json:"segtype"`
	SegStart string `json:"seg_start"`
	SegSize  string `json:"seg_size"`
	Devices  string `json:"devices"`
}

// GetReports runs `lvm fullreport` and parses its JSON output into one
// Report per volume group (plus one report with an empty VG list holding
// any PV not yet assigned to a VG).
func GetReports(ctx context.Context) ([]Report, error) {
	res, err := executil.RunStrict(ctx, "lvm", "fullreport", "--all", "--units", "B", "--reportformat", "json")
	if err != nil {
		return nil, err
	}
	var desc jsonDesc
	if err := json.Unmarshal([]byte(res.Stdout), &desc); err != nil {
		return nil, bsuerrors.New(bsuerrors.InvariantViolation, "lvm.GetReports", err)
	}
	return desc.Report, nil
}

// ReportFor returns the report entry whose VG matches name, or ok=false.
func ReportFor(ctx context.Context, name string) (Report, bool, error) {
	reports, err := GetReports(ctx)
	if err != nil {
		return Report{}, false, err
	}
	for _, r := range reports {
		if len(r.VG) == 0 {
			continue
		}
		if r.VG[0].VGName == name {
			return r, true, nil
		}
	}
	return Report{}, false, nil
}

// ReportUnassigned returns the report entry whose VG list is empty — the
// bucket of PVs not in any volume group.
func ReportUnassigned(ctx context.Context) (Report, bool, error) {
	reports, err := GetReports(ctx)
	if err != nil {
		return Report{}, false, err
	}
	for _, r := range reports {
		if len(r.VG) == 0 {
			return r, true, nil
		}
	}
	return Report{}, false, nil
}

func parseSizeBytes(raw string) (int64, error) {
	trimmed := strings.TrimSuffix(raw, "B")
	return strconv.ParseInt(trimmed, 10, 64)
}

// VGSizeBytes returns the size, in bytes, of the named volume group.
func VGSizeBytes(ctx context.Context, vgName string) (int64, error) {
	r, ok, err := ReportFor(ctx, vgName)
	if err != nil {
		return 0, err
	}
	if !ok || len(r.VG) == 0 {
		return 0, bsuerrors.New(bsuerrors.InvariantViolation, "lvm.VGSizeBytes", errNoSuchVG(vgName))
	}
	return parseSizeBytes(r.VG[0].VGSize)
}

// LVSizeBytes returns the size, in bytes, of the LV inside the named
// volume group (there is at most one LV per drive's VG: "bsud").
func LVSizeBytes(ctx context.Context, vgName string) (int64, error) {
	r, ok, err := ReportFor(ctx, vgName)
	if err != nil {
		return 0, err
	}
	if !ok || len(r.LV) == 0 {
		return 0, bsuerrors.New(bsuerrors.InvariantViolation, "lvm.LVSizeBytes", errNoSuchVG(vgName))
	}
	return parseSizeBytes(r.LV[0].LVSize)
}

type noSuchVGErr struct{ name string }

func (e noSuchVGErr) Error() string { return "no such volume group: " + e.name }

func errNoSuchVG(name string) error { return noSuchVGErr{name: name} }

// InitPV runs pvcreate on path.
func InitPV(ctx context.Context, path string) error {
	_, err := executil.RunStrict(ctx, "lvm", "pvcreate", path)
	return err
}

// CreateVG creates a volume group named vgName seeded with initialPV.
func CreateVG(ctx context.Context, vgName, initialPV string) error {
	_, err := executil.RunStrict(ctx, "lvm", "vgcreate", "--alloc", "normal", vgName, initialPV)
	return err
}

// ActivateVG activates or deactivates a volume group.
func ActivateVG(ctx context.Context, activate bool, vgName string) error {
	flag := "-an"
	if activate {
		flag = "-ay"
	}
	_, err := executil.RunStrict(ctx, "vgchange", flag, vgName)
	return err
}

// ExtendVG adds a PV into an existing volume group.
func ExtendVG(ctx context.Context, vgName, pvPath string) error {
	_, err := executil.RunStrict(ctx, "lvm", "vgextend", vgName, pvPath)
	return err
}

// CreateLV creates the "bsud" logical volume using 100% of a VG's free
// extents.
func CreateLV(ctx context.Context, vgName string) error {
	_, err := executil.RunStrict(ctx, "lvm", "lvcreate", "--extents", "100%FREE", "-n", LVName, vgName)
	return err
}

// ActivateLV activates or deactivates a logical volume.
func ActivateLV(ctx context.Context, activate bool, lvName string) error {
	flag := "-an"
	if activate {
		flag = "-ay"
	}
	_, err := executil.RunStrict(ctx, "lvchange", flag, lvName)
	return err
}

// ExtendLVFull grows the LV to absorb all free extents in its VG.
func ExtendLVFull(ctx context.Context, lvPath string) error {
	_, err := executil.RunStrict(ctx, "lvm", "lvextend", "--extents", "+100%FREE", lvPath)
	return err
}

// ReduceLV shrinks the LV to exactly newSizeBytes.
func ReduceLV(ctx context.Context, lvPath string, newSizeBytes int64) error {
	size := strconv.FormatInt(newSizeBytes, 10) + "B"
	_, err := executil.RunStrict(ctx, "lvm", "lvreduce", "--yes", "--size", size, lvPath)
	return err
}

// ScanVGs runs vgscan best-effort.
func ScanVGs(ctx context.Context) error {
	_, err := executil.RunStrict(ctx, "vgscan")
	return err
}

// PVMove migrates every extent off pvPath onto remaining PVs in its VG.
// Lenient: a no-op "nothing to move" exit is not a failure.
func PVMove(ctx context.Context, pvPath string) bool {
	_, ok := executil.RunLenient(ctx, "lvm", "pvmove", pvPath)
	return ok
}

// PVMoveAll resumes any interrupted extent migration left over from a
// previous run. Lenient for the same reason as PVMove.
func PVMoveAll(ctx context.Context) bool {
	_, ok := executil.RunLenient(ctx, "lvm", "pvmove")
	return ok
}

// ReduceVG removes a PV from a volume group.
func ReduceVG(ctx context.Context, vgName, devicePath string) error {
	_, err := executil.RunStrict(ctx, "lvm", "vgreduce", vgName, devicePath)
	return err
}

// RemovePV wipes LVM metadata off a device so it can be released.
func RemovePV(ctx context.Context, devicePath string) error {
	_, err := executil.RunStrict(ctx, "lvm", "pvremove", devicePath)
	return err
}
