package util

import (
	"crypto/md5"
	"crypto/sha256"
	"fmt"
)

// HashBytes computes SHA256 hash of the given bytes
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// ETag returns the quoted MD5 digest S3 reports for single-part uploads.
func ETag(data []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(data))
}
