/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metadata.go
Description: Workspace metadata for the instrumentation build. A TOML manifest declares the
build output directory and the components it produces, so "component does not exist" can be
told apart from "component exists but has not been built".
*/

package provision

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// DefaultMetadataFile is the manifest name looked up in a build workspace root
const DefaultMetadataFile = "simfuzz-workspace.toml"

// Component describes one buildable component of the instrumentation workspace
type Component struct {
	Name         string   `toml:"name"`
	Manifest     string   `toml:"manifest"`
	Dependencies []string `toml:"dependencies"`
}

// WorkspaceMetadata is the parsed build workspace manifest
type WorkspaceMetadata struct {
	Root            string      `toml:"-"`
	TargetDirectory string      `toml:"target_directory"`
	Profile         string      `toml:"profile"`
	ProfileFallback bool        `toml:"profile_fallback"` // also search the other profile's output
	Components      []Component `toml:"component"`
}

// LoadWorkspaceMetadata reads and validates a workspace manifest. Relative paths in the
// manifest are resolved against the manifest's directory.
func LoadWorkspaceMetadata(fs afero.Fs, manifestPath string) (*WorkspaceMetadata, error) {
	data, err := afero.ReadFile(fs, manifestPath)
	if err != nil {
		return nil, &ProvisioningError{Op: "load-metadata", Path: manifestPath, Err: err}
	}

	var md WorkspaceMetadata
	if err := toml.Unmarshal(data, &md); err != nil {
		return nil, &ProvisioningError{Op: "load-metadata", Path: manifestPath, Err: fmt.Errorf("parse failed: %w", err)}
	}

	md.Root = filepath.Dir(manifestPath)
	if md.TargetDirectory == "" {
		md.TargetDirectory = "target"
	}
	if !filepath.IsAbs(md.TargetDirectory) {
		md.TargetDirectory = filepath.Join(md.Root, md.TargetDirectory)
	}
	switch md.Profile {
	case "":
		md.Profile = "release"
	case "debug", "release":
	default:
		return nil, &ProvisioningError{Op: "load-metadata", Path: manifestPath, Err: fmt.Errorf("unsupported profile %q", md.Profile)}
	}

	for i := range md.Components {
		c := &md.Components[i]
		if strings.TrimSpace(c.Name) == "" {
			return nil, &ProvisioningError{Op: "load-metadata", Path: manifestPath, Err: fmt.Errorf("component[%d] missing name", i)}
		}
		if c.Manifest != "" && !filepath.IsAbs(c.Manifest) {
			c.Manifest = filepath.Join(md.Root, c.Manifest)
		}
	}

	return &md, nil
}

// ResolvePackageMetadata returns the descriptor of a declared component
func (md *WorkspaceMetadata) ResolvePackageMetadata(name string) (Component, error) {
	for _, c := range md.Components {
		if c.Name == name {
			return c, nil
		}
	}
	return Component{}, &ProvisioningError{Op: "resolve-component", Component: name, Err: ErrComponentUnknown}
}
