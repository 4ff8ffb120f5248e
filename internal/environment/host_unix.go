//go:build unix

package environment

import "golang.org/x/sys/unix"

// kernelIdentity returns the kernel name and release from uname(2).
func kernelIdentity() (string, string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", ""
	}
	return unix.ByteSliceToString(u.Sysname[:]), unix.ByteSliceToString(u.Release[:])
}
