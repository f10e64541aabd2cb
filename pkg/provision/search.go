/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: search.go
Description: Pattern based file lookup inside a simulator platform tree. Package files repeat
across version directories, so lookups match on base names rather than exact paths.
*/

package provision

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/spf13/afero"
)

// FindFileByPattern returns a regular file under baseDir whose base name matches pattern.
// When several files match, the lexicographically smallest full path is returned.
func FindFileByPattern(fs afero.Fs, baseDir, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", &ProvisioningError{Op: "find-file", Path: baseDir, Err: fmt.Errorf("bad pattern %q: %w", pattern, err)}
	}

	var matches []string
	err = afero.Walk(fs, baseDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			// unreadable subtrees are skipped, the search is best effort
			return nil
		}
		if info.Mode().IsRegular() && re.MatchString(info.Name()) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", &ProvisioningError{Op: "find-file", Path: baseDir, Err: err}
	}

	if len(matches) == 0 {
		return "", &ProvisioningError{
			Op:   "find-file",
			Path: baseDir,
			Err:  fmt.Errorf("%w: could not find %s in %s", ErrFileNotFound, pattern, baseDir),
		}
	}

	sort.Strings(matches)
	return matches[0], nil
}
