package fsadm

import (
	"golang.org/x/sys/unix"

	"github.com/outscale/bsud/pkg/bsuerrors"
)

// Stats are the live mount statistics of a mounted filesystem.
type Stats struct {
	SizeBytes      int64
	UsedBytes      int64
	AvailableBytes int64
}

// UsedFraction returns used/size as a unit fraction. Despite the name
// used elsewhere in this domain ("used_perc"), this is a fraction in
// [0, 1], not a percentage.
func (s Stats) UsedFraction() float64 {
	if s.SizeBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.SizeBytes)
}

// ReadStats statfs(2)s the filesystem mounted at target.
func ReadStats(target string) (Stats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(target, &st); err != nil {
		return Stats{}, bsuerrors.New(bsuerrors.ExternalCommandFailed, "fsadm.ReadStats", err)
	}
	blockSize := int64(st.Bsize)
	size := int64(st.Blocks) * blockSize
	available := int64(st.Bavail) * blockSize
	free := int64(st.Bfree) * blockSize
	used := size - free
	return Stats{
		SizeBytes:      size,
		UsedBytes:      used,
		AvailableBytes: available,
	}, nil
}
