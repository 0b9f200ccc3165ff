//go:build !unix

package versions

import "os"

// ownedByCaller is a no-op where POSIX ownership does not apply.
func ownedByCaller(_ os.FileInfo) bool {
	return true
}
