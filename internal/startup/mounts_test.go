//go:build linux

package startup

import (
	"strings"
	"testing"

	"github.com/moby/sys/mountinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMountinfo = `22 1 259:2 / / rw,relatime shared:1 - ext4 /dev/nvme0n1p2 rw
23 22 0:21 / /proc rw,nosuid,nodev,noexec - proc proc rw
45 22 8:17 / /media/alex/USB\040STICK rw,nosuid,nodev shared:30 - vfat /dev/sdb1 rw
46 22 8:33 / /mnt/backup rw,relatime shared:31 - ext4 /dev/sdc1 rw
47 46 8:33 / /mnt/backup rw,relatime shared:31 - ext4 /dev/sdc1 rw
48 22 0:50 / /mnt/ramdisk rw shared:32 - tmpfs tmpfs rw
49 22 8:49 / /mntx rw shared:33 - ext4 /dev/sdd1 rw
50 22 8:65 / /media rw shared:34 - ext4 /dev/sde1 rw
`

func TestRemovableFilter(t *testing.T) {
	infos, err := mountinfo.GetMountsFromReader(strings.NewReader(sampleMountinfo), removableFilter)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/media/alex/USB STICK",
		"/mnt/backup",
		"/media",
	}, mountPoints(infos))
}

func TestRemovableFilterEmptyTable(t *testing.T) {
	infos, err := mountinfo.GetMountsFromReader(strings.NewReader(""), removableFilter)
	require.NoError(t, err)
	assert.Empty(t, mountPoints(infos))
}

func TestRemovableFilterCases(t *testing.T) {
	tests := []struct {
		name string
		info mountinfo.Info
		keep bool
	}{
		{"usb under media", mountinfo.Info{Source: "/dev/sdb1", Mountpoint: "/media/usb"}, true},
		{"mnt itself", mountinfo.Info{Source: "/dev/sdc1", Mountpoint: "/mnt"}, true},
		{"tmpfs under mnt", mountinfo.Info{Source: "tmpfs", Mountpoint: "/mnt/ram"}, false},
		{"sibling prefix", mountinfo.Info{Source: "/dev/sdd1", Mountpoint: "/mediastore"}, false},
		{"root filesystem", mountinfo.Info{Source: "/dev/nvme0n1p2", Mountpoint: "/"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, stop := removableFilter(&tt.info)
			assert.Equal(t, !tt.keep, skip)
			assert.False(t, stop)
		})
	}
}

func TestRemovableMounts(t *testing.T) {
	mounts, err := RemovableMounts()
	require.NoError(t, err)
	for _, m := range mounts {
		assert.True(t, m == "/media" || m == "/mnt" ||
			strings.HasPrefix(m, "/media/") || strings.HasPrefix(m, "/mnt/"), m)
	}
}
