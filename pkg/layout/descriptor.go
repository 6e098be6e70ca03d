package layout

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Coordinates are the module coordinates declared by a POM.
type Coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
}

type pomParent struct {
	GroupID string `xml:"groupId"`
	Version string `xml:"version"`
}

type pom struct {
	XMLName    xml.Name  `xml:"project"`
	GroupID    string    `xml:"groupId"`
	ArtifactID string    `xml:"artifactId"`
	Version    string    `xml:"version"`
	Parent     pomParent `xml:"parent"`
}

// ParseDescriptor reads the coordinates declared by a POM. Group and version
// fall back to the parent's when the project omits them.
func ParseDescriptor(r io.Reader) (Coordinates, error) {
	var p pom
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	if err := decoder.Decode(&p); err != nil {
		return Coordinates{}, fmt.Errorf("failed to parse descriptor: %w", err)
	}

	c := Coordinates{
		GroupID:    strings.TrimSpace(p.GroupID),
		ArtifactID: strings.TrimSpace(p.ArtifactID),
		Version:    strings.TrimSpace(p.Version),
	}
	if c.GroupID == "" {
		c.GroupID = strings.TrimSpace(p.Parent.GroupID)
	}
	if c.Version == "" {
		c.Version = strings.TrimSpace(p.Parent.Version)
	}
	if c.GroupID == "" || c.ArtifactID == "" || c.Version == "" {
		return c, fmt.Errorf("descriptor is missing groupId, artifactId or version")
	}
	return c, nil
}

// MatchesPath checks that the coordinates agree with the path the descriptor
// is stored at. Property placeholders (${...}) are not resolved and never match.
func (c Coordinates) MatchesPath(path string) error {
	info, ok := Parse(path)
	if !ok {
		return fmt.Errorf("path %s is not a valid module path", path)
	}

	if c.GroupID != info.Group {
		return fmt.Errorf("descriptor groupId %q does not match path group %q", c.GroupID, info.Group)
	}
	if c.ArtifactID != info.Artifact {
		return fmt.Errorf("descriptor artifactId %q does not match path artifact %q", c.ArtifactID, info.Artifact)
	}
	if c.Version != info.BaseRevision && c.Version != info.Revision() {
		return fmt.Errorf("descriptor version %q does not match path version %q", c.Version, info.BaseRevision)
	}
	return nil
}
