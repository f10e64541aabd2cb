/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry.go
Description: Installed package registry for the simulator platform. Scans a platform home
directory for add-on packages, reads their packageinfo descriptors, and resolves package
selections either to a pinned version or to the latest installed one.
*/

package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// LatestVersion is the version string meaning "newest installed"
const LatestVersion = "latest"

// PackageSelection identifies one add-on package of the simulator platform
type PackageSelection struct {
	ID      int64  `json:"id" mapstructure:"id"`
	Version string `json:"version" mapstructure:"version"`
}

// ParsePackageSelection parses "ID:VERSION", "ID:latest" or a bare "ID"
func ParsePackageSelection(s string) (PackageSelection, error) {
	idPart, ver, _ := strings.Cut(strings.TrimSpace(s), ":")
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return PackageSelection{}, fmt.Errorf("invalid package selection %q: %w", s, err)
	}
	ver = strings.TrimSpace(ver)
	if ver == "" {
		ver = LatestVersion
	}
	return PackageSelection{ID: id, Version: ver}, nil
}

// Pinned reports whether the selection names an explicit version
func (s PackageSelection) Pinned() bool {
	return s.Version != "" && s.Version != LatestVersion
}

func (s PackageSelection) String() string {
	v := s.Version
	if v == "" {
		v = LatestVersion
	}
	return fmt.Sprintf("%d:%s", s.ID, v)
}

// Package is one installed add-on package
type Package struct {
	Number  int64  `json:"number" yaml:"package-number"`
	Name    string `json:"name" yaml:"package-name"`
	Version string `json:"version" yaml:"version"`
	Path    string `json:"-" yaml:"-"`
}

// Registry indexes the packages installed under a platform home directory
type Registry struct {
	fs       afero.Fs
	home     string
	packages []Package
}

// NewRegistry scans home for package directories containing packageinfo descriptors.
// Descriptors that do not parse are ignored; they are commonly left behind by
// partially removed installs.
func NewRegistry(fs afero.Fs, home string) (*Registry, error) {
	entries, err := afero.ReadDir(fs, home)
	if err != nil {
		return nil, &ProvisioningError{Op: "scan-packages", Path: home, Err: err}
	}

	r := &Registry{fs: fs, home: home}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pkgDir := filepath.Join(home, entry.Name())
		infoDir := filepath.Join(pkgDir, "packageinfo")
		infos, err := afero.ReadDir(fs, infoDir)
		if err != nil {
			continue
		}
		for _, info := range infos {
			if info.IsDir() {
				continue
			}
			pkg, ok := readPackageInfo(fs, filepath.Join(infoDir, info.Name()))
			if !ok {
				continue
			}
			pkg.Path = pkgDir
			r.packages = append(r.packages, pkg)
			break
		}
	}

	sort.Slice(r.packages, func(i, j int) bool {
		if r.packages[i].Number != r.packages[j].Number {
			return r.packages[i].Number < r.packages[j].Number
		}
		return r.packages[i].Path < r.packages[j].Path
	})
	return r, nil
}

func readPackageInfo(fs afero.Fs, path string) (Package, bool) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Package{}, false
	}
	var pkg Package
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return Package{}, false
	}
	if pkg.Number == 0 || pkg.Version == "" {
		return Package{}, false
	}
	return pkg, true
}

// Home returns the scanned platform home directory
func (r *Registry) Home() string { return r.home }

// Packages returns every installed package ordered by number
func (r *Registry) Packages() []Package {
	out := make([]Package, len(r.packages))
	copy(out, r.packages)
	return out
}

// Latest returns the newest installed version of a package
func (r *Registry) Latest(id int64) (Package, error) {
	var (
		best    Package
		bestVer *version.Version
		found   bool
	)
	for _, pkg := range r.packages {
		if pkg.Number != id {
			continue
		}
		v, err := version.NewVersion(pkg.Version)
		if err != nil {
			continue
		}
		if !found || v.GreaterThan(bestVer) {
			best, bestVer, found = pkg, v, true
		}
	}
	if !found {
		return Package{}, &ProvisioningError{
			Op:        "resolve-package",
			Component: strconv.FormatInt(id, 10),
			Path:      r.home,
			Err:       ErrPackageNotFound,
		}
	}
	return best, nil
}

// Resolve maps a selection onto an installed package
func (r *Registry) Resolve(sel PackageSelection) (Package, error) {
	if !sel.Pinned() {
		return r.Latest(sel.ID)
	}
	want, err := version.NewVersion(sel.Version)
	for _, pkg := range r.packages {
		if pkg.Number != sel.ID {
			continue
		}
		if pkg.Version == sel.Version {
			return pkg, nil
		}
		if err == nil {
			if v, verr := version.NewVersion(pkg.Version); verr == nil && v.Equal(want) {
				return pkg, nil
			}
		}
	}
	return Package{}, &ProvisioningError{
		Op:        "resolve-package",
		Component: sel.String(),
		Path:      r.home,
		Err:       ErrPackageNotFound,
	}
}

// statDir is a small helper shared by the provisioner for existence checks
func statDir(fs afero.Fs, path string) (os.FileInfo, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrSourceNotDirectory
	}
	return info, nil
}
