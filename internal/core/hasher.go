package core

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// projectKeyLen is the number of hex characters of the path digest used in
// project directory names.
const projectKeyLen = 8

// ProjectKey identifies the cache directory of one source file.
//
// It combines the file stem, for readability, with a digest of the absolute
// path, so two scripts with the same name in different directories never
// share a project.
type ProjectKey string

// ComputeProjectKey derives the key for an absolute source path.
func ComputeProjectKey(absSource string) ProjectKey {
	sum := sha256.Sum256([]byte(filepath.ToSlash(absSource)))
	digest := hex.EncodeToString(sum[:])[:projectKeyLen]

	base := filepath.Base(absSource)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return ProjectKey(digest)
	}
	return ProjectKey(stem + "-" + digest)
}

// String returns the string representation of the ProjectKey.
func (k ProjectKey) String() string {
	return string(k)
}

// contentDigest returns the hex sha256 of data.
func contentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
