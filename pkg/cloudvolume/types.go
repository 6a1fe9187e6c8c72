// Package cloudvolume wraps the Outscale cloud's block-volume API: create,
// tag, read, attach, detach, delete, and wait on state transitions. Every
// round-trip is rate-limited by the shared gate so cloud calls across all
// drive workers stay at least T_api apart.
package cloudvolume

// TagKey is the sole source of truth for "which drive does this volume
// belong to". A volume belongs to a drive iff it carries this tag.
const TagKey = "osc.bsud.drive-name"

// DiskType is the cloud volume's storage class.
type DiskType string

const (
	Standard DiskType = "standard"
	Gp2      DiskType = "gp2"
	Io1      DiskType = "io1"
)

// State is a cloud volume's lifecycle state. A volume is usable only when
// its state is one of Creating, Available, or InUse.
type State string

const (
	Creating  State = "creating"
	Available State = "available"
	InUse     State = "in-use"
)

// Usable reports whether a volume in this state belongs to the working set
// a drive reconciles against.
func (s State) Usable() bool {
	switch s {
	case Creating, Available, InUse:
		return true
	default:
		return false
	}
}

// Attachment is the linkage record advertised by the cloud for a volume
// currently attached to a VM.
type Attachment struct {
	VMID       string
	DevicePath string
	State      string
}

// Volume is a cloud block volume as observed from the cloud API.
type Volume struct {
	ID         string
	SizeGiB    int
	State      State
	Attachment *Attachment
	Tags       map[string]string
}

// DriveName returns the volume's owning drive, derived solely from TagKey.
func (v Volume) DriveName() (string, bool) {
	name, ok := v.Tags[TagKey]
	return name, ok
}

// AttachedTo reports whether the volume is attached (or attaching) to vmID.
func (v Volume) AttachedTo(vmID string) bool {
	return v.Attachment != nil && v.Attachment.VMID == vmID &&
		(v.Attachment.State == "attaching" || v.Attachment.State == "attached")
}
