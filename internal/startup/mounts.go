package startup

import (
	"fmt"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// removablePrefixes are the mount roots where desktop environments and
// administrators conventionally attach removable drives.
var removablePrefixes = []string{"/media", "/mnt"}

// RemovableMounts lists block-device mounts under /media or /mnt.
func RemovableMounts() ([]string, error) {
	infos, err := mountinfo.GetMounts(removableFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	return mountPoints(infos), nil
}

// removableFilter keeps /dev/ sources mounted at or below a removable prefix.
func removableFilter(m *mountinfo.Info) (skip, stop bool) {
	if !strings.HasPrefix(m.Source, "/dev/") {
		return true, false
	}
	for _, prefix := range removablePrefixes {
		if outside, _ := mountinfo.PrefixFilter(prefix)(m); !outside {
			return false, false
		}
	}
	return true, false
}

// mountPoints returns the distinct mount points of infos in table order.
func mountPoints(infos []*mountinfo.Info) []string {
	var points []string
	seen := make(map[string]bool, len(infos))
	for _, m := range infos {
		if seen[m.Mountpoint] {
			continue
		}
		seen[m.Mountpoint] = true
		points = append(points, m.Mountpoint)
	}
	return points
}
