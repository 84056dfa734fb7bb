//go:build !unix

package deviceid

import (
	"os"
	"time"
)

// statInfo holds the mount-point metadata folded into a fingerprint.
type statInfo struct {
	Dev        uint64
	Ino        uint64
	ChangeTime time.Time
}

// mountStat degrades to modification time on platforms without unix stat
// data. The fingerprint stays deterministic, just less discriminating.
func mountStat(path string) (statInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return statInfo{}, err
	}
	return statInfo{ChangeTime: info.ModTime()}, nil
}
