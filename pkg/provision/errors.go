/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Provisioning error taxonomy. Every failure names the file, component or package
it concerns so a failed worker slot can be attributed without digging through logs.
*/

package provision

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotDirectory = errors.New("source is not a directory")
	ErrCopyFailed         = errors.New("copy failed")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrComponentUnknown   = errors.New("component unknown")
	ErrPackageNotFound    = errors.New("package not found")
	ErrFileNotFound       = errors.New("file not found")
	ErrInvalidMapping     = errors.New("invalid file mapping")
)

// ProvisioningError is structural: retrying with the same inputs will fail again
type ProvisioningError struct {
	Op        string // operation that failed (copy, resolve-artifact, ...)
	Path      string // file or directory involved, if any
	Component string // component or package involved, if any
	Err       error
}

func (e *ProvisioningError) Error() string {
	msg := "provision " + e.Op
	if e.Component != "" {
		msg += fmt.Sprintf(" [%s]", e.Component)
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	return msg + ": " + e.Err.Error()
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
