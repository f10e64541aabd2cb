/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: artifact.go
Description: Resolution of the compiled instrumentation module injected into each workspace.
Searches the build output directories in a fixed order and fails loudly when nothing exists.
*/

package provision

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LibraryKind is the linkage of a compiled module
type LibraryKind int

const (
	Static LibraryKind = iota
	Dynamic
)

// ParseLibraryKind infers the linkage from a file name extension
func ParseLibraryKind(name string) (LibraryKind, error) {
	switch {
	case strings.HasSuffix(name, ".a"):
		return Static, nil
	case strings.HasSuffix(name, ".so"):
		return Dynamic, nil
	}
	return 0, fmt.Errorf("unrecognized extension for library type from %s", name)
}

// Suffix returns the file extension for the linkage
func (k LibraryKind) Suffix() string {
	if k == Static {
		return ".a"
	}
	return ".so"
}

func (k LibraryKind) String() string {
	if k == Static {
		return "static"
	}
	return "dynamic"
}

// LibraryArtifact identifies a compiled module by component name and linkage
type LibraryArtifact struct {
	Component string
	Kind      LibraryKind
}

// FileName is the expected output file name for the artifact
func (a LibraryArtifact) FileName() string {
	return "lib" + strings.ReplaceAll(a.Component, "-", "_") + a.Kind.Suffix()
}

// CandidatePaths lists where the artifact may have been built, in search order:
// the configured profile's deps directory, then the profile directory. With
// ProfileFallback set the same pair for the other profile follows.
func (md *WorkspaceMetadata) CandidatePaths(a LibraryArtifact) []string {
	profiles := []string{md.Profile}
	if md.ProfileFallback {
		profiles = append(profiles, md.otherProfile())
	}
	name := a.FileName()
	paths := make([]string, 0, 2*len(profiles))
	for _, p := range profiles {
		paths = append(paths,
			filepath.Join(md.TargetDirectory, p, "deps", name),
			filepath.Join(md.TargetDirectory, p, name),
		)
	}
	return paths
}

// InProfile reports whether path lies in the configured profile's output
func (md *WorkspaceMetadata) InProfile(path string) bool {
	dir := filepath.Join(md.TargetDirectory, md.Profile) + string(filepath.Separator)
	return strings.HasPrefix(filepath.Clean(path), dir)
}

func (md *WorkspaceMetadata) otherProfile() string {
	if md.Profile == "debug" {
		return "release"
	}
	return "debug"
}

// ResolveLibraryArtifact returns the first existing build output for the component
func (md *WorkspaceMetadata) ResolveLibraryArtifact(fs afero.Fs, component string, kind LibraryKind) (string, error) {
	if _, err := md.ResolvePackageMetadata(component); err != nil {
		return "", err
	}

	artifact := LibraryArtifact{Component: component, Kind: kind}
	for _, candidate := range md.CandidatePaths(artifact) {
		info, err := fs.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}

	return "", &ProvisioningError{
		Op:        "resolve-artifact",
		Component: component,
		Err:       fmt.Errorf("%w: no %s %s build of %s under %s", ErrArtifactNotFound, md.Profile, kind, artifact.FileName(), md.TargetDirectory),
	}
}
