package lvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLVPathDoublesDashes(t *testing.T) {
	assert.Equal(t, "/dev/mapper/data-bsud", LVPath("data"))
	assert.Equal(t, "/dev/mapper/my--drive--name-bsud", LVPath("my-drive-name"))
}

func TestParseSizeBytesStripsUnitSuffix(t *testing.T) {
	got, err := parseSizeBytes("10737418240B")
	assert.NoError(t, err)
	assert.Equal(t, int64(10737418240), got)
}

func TestReportDevices(t *testing.T) {
	r := Report{PV: []PV{{PVName: "/dev/xvdb"}, {PVName: "/dev/xvdc"}}}
	assert.Equal(t, []string{"/dev/xvdb", "/dev/xvdc"}, r.Devices())
}

// ReportFor itself runs `lvm fullreport`, so this test does not call it: it
// checks the matching rule ReportFor applies (first VG entry's name) over an
// in-memory slice of reports.
func TestReportVGNameMatchingRule(t *testing.T) {
	reports := []Report{
		{VG: []VG{{VGName: "other"}}},
		{VG: []VG{{VGName: "target", VGSize: "1024B"}}},
	}
	var found Report
	var ok bool
	for _, r := range reports {
		if len(r.VG) > 0 && r.VG[0].VGName == "target" {
			found = r
			ok = true
		}
	}
	assert.True(t, ok)
	assert.Equal(t, "target", found.VG[0].VGName)
}
