/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: copy.go
Description: Recursive tree copy used to lay platform, package and harness files into a
workspace. Directories already present at the destination are kept; files are overwritten.
*/

package provision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// CopyTree copies every file under src into dst, creating directories as needed.
// Existing destination directories are never removed or emptied, so customisations
// that live next to the copied files survive. A failure aborts the walk and leaves
// a partial copy behind.
func CopyTree(fs afero.Fs, src, dst string) error {
	isDir, err := afero.IsDir(fs, src)
	if err != nil || !isDir {
		if err == nil {
			err = ErrSourceNotDirectory
		} else {
			err = fmt.Errorf("%w: %v", ErrSourceNotDirectory, err)
		}
		return &ProvisioningError{Op: "copy", Path: src, Err: err}
	}

	return afero.Walk(fs, src, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return &ProvisioningError{Op: "copy", Path: path, Err: fmt.Errorf("%w: %v", ErrCopyFailed, walkErr)}
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return &ProvisioningError{Op: "copy", Path: path, Err: fmt.Errorf("%w: %v", ErrCopyFailed, err)}
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			if err := fs.MkdirAll(target, 0755); err != nil {
				return &ProvisioningError{Op: "copy", Path: target, Err: fmt.Errorf("%w: %v", ErrCopyFailed, err)}
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := fs.Stat(path)
			if err != nil || !resolved.Mode().IsRegular() {
				return nil
			}
			info = resolved
		} else if !info.Mode().IsRegular() {
			return nil
		}

		return copyFile(fs, path, target, info.Mode().Perm())
	})
}

// copyFile overwrites dst with the contents of src
func copyFile(fs afero.Fs, src, dst string, perm os.FileMode) error {
	fail := func(err error) error {
		return &ProvisioningError{Op: "copy", Path: src, Err: fmt.Errorf("%w: %v", ErrCopyFailed, err)}
	}

	if err := fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fail(err)
	}
	in, err := fs.Open(src)
	if err != nil {
		return fail(err)
	}
	defer in.Close()

	if perm == 0 {
		perm = 0644
	}
	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fail(err)
	}
	if err := out.Close(); err != nil {
		return fail(err)
	}
	return nil
}
