// Package layout translates repository paths to module coordinates.
//
// Only the Maven 2 layout is implemented:
//
//	<group as dirs>/<artifact>/<baseRevision>/<artifact>-<fileRevision>[-<classifier>].<ext>
package layout

import (
	"regexp"
	"strings"
)

const snapshotSuffix = "-SNAPSHOT"

// uniqueSnapshot matches timestamped snapshot revisions such as 1.0-20240101.120000-3.
var uniqueSnapshot = regexp.MustCompile(`^(.+)-(\d{8}\.\d{6})-(\d+)$`)

// ModuleInfo holds the coordinates encoded in a Maven 2 path.
type ModuleInfo struct {
	Group             string
	Artifact          string
	BaseRevision      string
	FileIntegRevision string
	Classifier        string
	Ext               string
}

// Valid reports whether the mandatory coordinates were recovered.
func (m ModuleInfo) Valid() bool {
	return m.Group != "" && m.Artifact != "" && m.BaseRevision != ""
}

// IsSnapshot reports whether the module is an integration (snapshot) revision.
func (m ModuleInfo) IsSnapshot() bool {
	return strings.HasSuffix(m.BaseRevision, snapshotSuffix)
}

// Revision returns the version a file declares: the timestamped revision for
// unique snapshots, the base revision otherwise.
func (m ModuleInfo) Revision() string {
	if m.FileIntegRevision != "" {
		return strings.TrimSuffix(m.BaseRevision, snapshotSuffix) + "-" + m.FileIntegRevision
	}
	return m.BaseRevision
}

// Parse extracts module coordinates from a file path. It returns ok=false for
// paths that are not module artifacts (metadata files, checksums of folders,
// paths with too few segments).
func Parse(path string) (ModuleInfo, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 4 {
		return ModuleInfo{}, false
	}

	n := len(segments)
	fileName := segments[n-1]
	baseRevision := segments[n-2]
	artifact := segments[n-3]
	group := strings.Join(segments[:n-3], ".")

	prefix := artifact + "-"
	if !strings.HasPrefix(fileName, prefix) {
		return ModuleInfo{}, false
	}
	rest := strings.TrimPrefix(fileName, prefix)

	info := ModuleInfo{Group: group, Artifact: artifact, BaseRevision: baseRevision}

	var tail string
	switch {
	case strings.HasPrefix(rest, baseRevision):
		tail = strings.TrimPrefix(rest, baseRevision)
	case strings.HasSuffix(baseRevision, snapshotSuffix):
		base := strings.TrimSuffix(baseRevision, snapshotSuffix)
		if !strings.HasPrefix(rest, base+"-") {
			return ModuleInfo{}, false
		}
		revAndTail := strings.TrimPrefix(rest, base+"-")
		integ, remaining, ok := splitIntegration(revAndTail)
		if !ok {
			return ModuleInfo{}, false
		}
		info.FileIntegRevision = integ
		tail = remaining
	default:
		return ModuleInfo{}, false
	}

	switch {
	case strings.HasPrefix(tail, "-"):
		classifier, ext, ok := strings.Cut(tail[1:], ".")
		if !ok {
			return ModuleInfo{}, false
		}
		info.Classifier = classifier
		info.Ext = ext
	case strings.HasPrefix(tail, "."):
		info.Ext = tail[1:]
	default:
		return ModuleInfo{}, false
	}

	return info, info.Ext != ""
}

// splitIntegration splits "20240101.120000-3[-classifier].ext" into the
// integration revision and the remaining "[-classifier].ext".
func splitIntegration(s string) (string, string, bool) {
	const tsLen = len("20240101.120000")
	if len(s) < tsLen+2 || s[tsLen] != '-' {
		return "", "", false
	}
	i := tsLen + 1
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return "", "", false
	}
	integ := s[:j]
	if !uniqueSnapshot.MatchString("x-" + integ) {
		return "", "", false
	}
	return integ, s[j:], true
}

// IsSnapshotPath reports whether path lies in, or names, a snapshot revision.
func IsSnapshotPath(path string) bool {
	if info, ok := Parse(path); ok {
		return info.IsSnapshot()
	}
	for _, segment := range strings.Split(path, "/") {
		if strings.HasSuffix(segment, snapshotSuffix) {
			return true
		}
	}
	return false
}

// IsDescriptor reports whether path is a module descriptor (POM).
func IsDescriptor(path string) bool {
	return strings.HasSuffix(path, ".pom")
}

// IsMetadata reports whether path is a maven-metadata.xml file or one of its checksums.
func IsMetadata(path string) bool {
	name := path[strings.LastIndexByte(path, '/')+1:]
	return strings.HasPrefix(name, "maven-metadata.xml")
}
