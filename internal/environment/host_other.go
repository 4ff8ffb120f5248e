//go:build !unix

package environment

func kernelIdentity() (string, string) {
	return "", ""
}
