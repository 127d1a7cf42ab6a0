package core

import (
	"path/filepath"
	"strings"
)

// ArtifactPath is the canonical key for every internal map: an absolute
// path to a dynamic library file on disk.
type ArtifactPath string

// Identity is the logical identity shared by successive versions of a
// plugin. It is derived from the artifact file name by stripping the final
// underscore-delimited token (a build timestamp/version tag) and the file
// extension. "hello_20240115T120000.so" and "hello_20240116T090000.so" both
// have identity "hello".
type Identity string

// backupSuffix is appended to an artifact's file name to name its backup.
const backupSuffix = ".backup"

// isBackupName reports whether name ends in the fixed backup suffix.
func isBackupName(name string) bool {
	return strings.HasSuffix(name, backupSuffix)
}

// stripBackupSuffix returns the live artifact name a backup was made from.
func stripBackupSuffix(name string) string {
	return strings.TrimSuffix(name, backupSuffix)
}

// IdentityOf derives the PluginIdentity from an artifact (or backup) path.
func IdentityOf(path ArtifactPath) Identity {
	base := filepath.Base(string(path))
	base = stripBackupSuffix(base)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return Identity(base)
	}
	return Identity(base[:idx])
}

// backupPathFor returns the fixed backup name for an artifact path.
func backupPathFor(path ArtifactPath) ArtifactPath {
	return ArtifactPath(string(path) + backupSuffix)
}
