//go:build unix

package deviceid

import (
	"time"

	"golang.org/x/sys/unix"
)

// statInfo holds the mount-point metadata folded into a fingerprint.
type statInfo struct {
	Dev        uint64
	Ino        uint64
	ChangeTime time.Time
}

func mountStat(path string) (statInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return statInfo{}, err
	}

	sec, nsec := st.Ctim.Unix()
	return statInfo{
		Dev:        uint64(st.Dev),
		Ino:        st.Ino,
		ChangeTime: time.Unix(sec, nsec),
	}, nil
}
