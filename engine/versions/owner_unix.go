//go:build unix

package versions

import (
	"os"
	"syscall"
)

// ownedByCaller reports whether the invoking user owns the file.
func ownedByCaller(info os.FileInfo) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	return int(st.Uid) == os.Getuid()
}
