/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: workspace.go
Description: Ephemeral simulation workspaces. The provisioner assembles one isolated project
per worker slot from the base platform tree, the selected add-on packages, the resolved
instrumentation artifact and the harness file mappings. Workspaces are removed on Close
unless retention was requested.
*/

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Placeholder expands to the workspace root in mapping destinations and command lines
const Placeholder = "%simics%"

// DescriptorFile is written at the root of every workspace
const DescriptorFile = "workspace.json"

// ExpandPlaceholder replaces every placeholder occurrence with root
func ExpandPlaceholder(s, root string) string {
	return strings.ReplaceAll(s, Placeholder, root)
}

// FileMapping copies Source (file or directory) to Destination inside the workspace
type FileMapping struct {
	Source      string `json:"source" mapstructure:"source"`
	Destination string `json:"destination" mapstructure:"destination"`
}

// ParseFileMapping parses "SRC:DST"
func ParseFileMapping(s string) (FileMapping, error) {
	src, dst, ok := strings.Cut(s, ":")
	if !ok || strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return FileMapping{}, fmt.Errorf("%w: %q (want SRC:DST)", ErrInvalidMapping, s)
	}
	return FileMapping{Source: strings.TrimSpace(src), Destination: strings.TrimSpace(dst)}, nil
}

// resolve returns the absolute destination path for a workspace root
func (m FileMapping) resolve(root string) (string, error) {
	dst := ExpandPlaceholder(m.Destination, root)
	if !filepath.IsAbs(dst) {
		dst = filepath.Join(root, dst)
	}
	dst = filepath.Clean(dst)
	rel, err := filepath.Rel(root, dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &ProvisioningError{Op: "map-file", Path: m.Destination, Err: fmt.Errorf("%w: destination escapes workspace", ErrInvalidMapping)}
	}
	return dst, nil
}

// Config describes what goes into every workspace
type Config struct {
	BaseDir      string             // base platform tree copied into each workspace
	WorkDir      string             // parent of the temporary workspaces, "" for the OS default
	Packages     []PackageSelection // add-on packages copied under packages/
	Files        []FileMapping      // harness files injected into each workspace
	Artifact     *LibraryArtifact   // instrumentation module, nil to skip injection
	MetadataPath string             // workspace manifest used to resolve Artifact
	Keep         bool               // retain workspaces after Close
}

// Workspace is one provisioned simulation project
type Workspace struct {
	Root     string
	Slot     int
	Packages []Package
	Artifact string
	Files    []FileMapping
	Keep     bool

	fs     afero.Fs
	logger *logrus.Logger
	closed bool
}

type descriptor struct {
	Packages []Package        `json:"packages"`
	Artifact string           `json:"artifact,omitempty"`
	Files    []descriptorFile `json:"files"`
}

type descriptorFile struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Expand resolves the placeholder against this workspace
func (w *Workspace) Expand(s string) string {
	return ExpandPlaceholder(s, w.Root)
}

// Close removes the workspace tree unless it is retained. Safe to call more than once.
func (w *Workspace) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	if w.Keep {
		w.logger.WithFields(logrus.Fields{"slot": w.Slot, "workspace": w.Root}).Info("Retaining workspace")
		return nil
	}
	if err := w.fs.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Root, err)
	}
	w.logger.WithFields(logrus.Fields{"slot": w.Slot, "workspace": w.Root}).Debug("Workspace removed")
	return nil
}

// Provisioner builds workspaces for worker slots
type Provisioner struct {
	fs       afero.Fs
	config   Config
	registry *Registry
	logger   *logrus.Logger
}

// NewProvisioner creates a provisioner. registry may be nil when no packages are selected.
func NewProvisioner(fs afero.Fs, config Config, registry *Registry, logger *logrus.Logger) (*Provisioner, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.BaseDir == "" {
		return nil, &ProvisioningError{Op: "configure", Err: fmt.Errorf("base platform directory not specified")}
	}
	if _, err := statDir(fs, config.BaseDir); err != nil {
		return nil, &ProvisioningError{Op: "configure", Path: config.BaseDir, Err: fmt.Errorf("%w: %v", ErrSourceNotDirectory, err)}
	}
	if len(config.Packages) > 0 && registry == nil {
		return nil, &ProvisioningError{Op: "configure", Err: fmt.Errorf("%w: packages selected without a registry", ErrPackageNotFound)}
	}
	if config.Artifact != nil && config.MetadataPath == "" {
		return nil, &ProvisioningError{Op: "configure", Component: config.Artifact.Component, Err: fmt.Errorf("artifact requested without workspace metadata")}
	}
	return &Provisioner{fs: fs, config: config, registry: registry, logger: logger}, nil
}

// Provision assembles a fresh workspace for slot. On any failure the partial
// workspace is removed before the error is returned.
func (p *Provisioner) Provision(ctx context.Context, slot int) (ws *Workspace, err error) {
	root, err := afero.TempDir(p.fs, p.config.WorkDir, fmt.Sprintf("simfuzz-slot%d-", slot))
	if err != nil {
		return nil, &ProvisioningError{Op: "create-workspace", Path: p.config.WorkDir, Err: err}
	}

	ws = &Workspace{
		Root:   root,
		Slot:   slot,
		Files:  p.config.Files,
		Keep:   p.config.Keep,
		fs:     p.fs,
		logger: p.logger,
	}
	defer func() {
		if err != nil {
			p.fs.RemoveAll(root)
			ws = nil
		}
	}()

	fields := logrus.Fields{"slot": slot, "workspace": root}
	p.logger.WithFields(fields).Debug("Provisioning workspace")

	if err := CopyTree(p.fs, p.config.BaseDir, root); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, sel := range p.config.Packages {
		pkg, err := p.registry.Resolve(sel)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(root, "packages", filepath.Base(pkg.Path))
		if err := CopyTree(p.fs, pkg.Path, dst); err != nil {
			return nil, err
		}
		ws.Packages = append(ws.Packages, pkg)
		p.logger.WithFields(fields).Debugf("Added package %d %s (%s)", pkg.Number, pkg.Version, pkg.Name)
	}

	var artifactRel string
	if p.config.Artifact != nil {
		md, err := LoadWorkspaceMetadata(p.fs, p.config.MetadataPath)
		if err != nil {
			return nil, err
		}
		src, err := md.ResolveLibraryArtifact(p.fs, p.config.Artifact.Component, p.config.Artifact.Kind)
		if err != nil {
			return nil, err
		}
		if !md.InProfile(src) {
			p.logger.WithFields(fields).Warnf("No %s build of %s, using %s instead", md.Profile, p.config.Artifact.Component, src)
		}
		ws.Artifact = filepath.Join(root, "modules", filepath.Base(src))
		if err := copyFile(p.fs, src, ws.Artifact, 0755); err != nil {
			return nil, err
		}
		artifactRel, _ = filepath.Rel(root, ws.Artifact)
		p.logger.WithFields(fields).Infof("Found module for %s at %s", p.config.Artifact.Component, src)
	}

	desc := descriptor{Packages: ws.Packages, Artifact: artifactRel, Files: []descriptorFile{}}
	for _, m := range p.config.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst, err := m.resolve(root)
		if err != nil {
			return nil, err
		}
		if err := p.injectFile(m.Source, dst); err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(root, dst)
		desc.Files = append(desc.Files, descriptorFile{Source: m.Source, Destination: rel})
	}

	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return nil, &ProvisioningError{Op: "describe", Path: root, Err: err}
	}
	if err := afero.WriteFile(p.fs, filepath.Join(root, DescriptorFile), data, 0644); err != nil {
		return nil, &ProvisioningError{Op: "describe", Path: root, Err: err}
	}

	p.logger.WithFields(fields).Info("Workspace provisioned")
	return ws, nil
}

func (p *Provisioner) injectFile(src, dst string) error {
	info, err := p.fs.Stat(src)
	if err != nil {
		return &ProvisioningError{Op: "map-file", Path: src, Err: fmt.Errorf("%w: %v", ErrFileNotFound, err)}
	}
	if info.IsDir() {
		return CopyTree(p.fs, src, dst)
	}
	return copyFile(p.fs, src, dst, info.Mode().Perm())
}
