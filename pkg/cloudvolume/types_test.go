package cloudvolume

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateUsable(t *testing.T) {
	assert.True(t, Creating.Usable())
	assert.True(t, Available.Usable())
	assert.True(t, InUse.Usable())
	assert.False(t, State("deleting").Usable())
}

func TestVolumeDriveName(t *testing.T) {
	v := Volume{Tags: map[string]string{TagKey: "data"}}
	name, ok := v.DriveName()
	assert.True(t, ok)
	assert.Equal(t, "data", name)

	v2 := Volume{Tags: map[string]string{}}
	_, ok = v2.DriveName()
	assert.False(t, ok)
}

func TestVolumeAttachedTo(t *testing.T) {
	v := Volume{Attachment: &Attachment{VMID: "i-123", State: "attached"}}
	assert.True(t, v.AttachedTo("i-123"))
	assert.False(t, v.AttachedTo("i-999"))

	v2 := Volume{Attachment: &Attachment{VMID: "i-123", State: "detaching"}}
	assert.False(t, v2.AttachedTo("i-123"))

	v3 := Volume{}
	assert.False(t, v3.AttachedTo("i-123"))
}

func TestIO1IOPSRaisesSmallVolumesToFloor(t *testing.T) {
	// 10 GiB * 100 default = 1000, raised to the 13000 floor.
	assert.Equal(t, 13000, io1IOPS(10, nil))
}

func TestIO1IOPSHonorsExplicitPerGiBAboveFloor(t *testing.T) {
	perGiB := 2000
	// 100 GiB * 2000 = 200000, already above the floor.
	assert.Equal(t, 200000, io1IOPS(100, &perGiB))
}
