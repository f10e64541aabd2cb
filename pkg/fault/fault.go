/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fault.go
Description: Architecture-scoped processor fault taxonomy for simfuzz. Maps raw trap and
exception numbers reported by the simulator onto named fault categories. Each architecture
owns a closed table; codes outside the table are rejected instead of being treated as benign.
*/

package fault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownFaultCode is returned when a raw code has no category for the architecture
	ErrUnknownFaultCode = errors.New("unknown fault code")
	// ErrUnknownArchitecture is returned for architectures without a fault table
	ErrUnknownArchitecture = errors.New("unknown architecture")
	// ErrUnknownFaultName is returned when a category name is not in the table
	ErrUnknownFaultName = errors.New("unknown fault name")
)

// Architecture identifies a target architecture with its own fault table
type Architecture string

const (
	ArchX86_64 Architecture = "x86-64"
)

// ParseArchitecture accepts the canonical name and the common aliases
func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x86-64", "x86_64", "amd64", "x86-64-intel":
		return ArchX86_64, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownArchitecture, s)
}

// X86_64Fault is an x86-64 exception vector as reported by the simulator's
// core exception notification. Numbers follow the SDM.
type X86_64Fault int64

const (
	// Triple has no vector of its own; -1 can never be a hardware exception number
	Triple                     X86_64Fault = -1
	Division                   X86_64Fault = 0
	Debug                      X86_64Fault = 1
	NonMaskableInterrupt       X86_64Fault = 2
	Breakpoint                 X86_64Fault = 3
	Overflow                   X86_64Fault = 4
	BoundRangeExceeded         X86_64Fault = 5
	InvalidOpcode              X86_64Fault = 6
	DeviceNotAvailable         X86_64Fault = 7
	Double                     X86_64Fault = 8
	InvalidTss                 X86_64Fault = 10
	SegmentNotPresent          X86_64Fault = 11
	StackSegment               X86_64Fault = 12
	GeneralProtection          X86_64Fault = 13
	Page                       X86_64Fault = 14
	X86Fpe                     X86_64Fault = 16
	AlignmentCheck             X86_64Fault = 17
	MachineCheck               X86_64Fault = 18
	SimdFpen                   X86_64Fault = 19
	VirtualizationException    X86_64Fault = 20
	ControlProtectionException X86_64Fault = 21
)

var x86_64Names = map[X86_64Fault]string{
	Triple:                     "Triple",
	Division:                   "Division",
	Debug:                      "Debug",
	NonMaskableInterrupt:       "NonMaskableInterrupt",
	Breakpoint:                 "Breakpoint",
	Overflow:                   "Overflow",
	BoundRangeExceeded:         "BoundRangeExceeded",
	InvalidOpcode:              "InvalidOpcode",
	DeviceNotAvailable:         "DeviceNotAvailable",
	Double:                     "Double",
	InvalidTss:                 "InvalidTss",
	SegmentNotPresent:          "SegmentNotPresent",
	StackSegment:               "StackSegment",
	GeneralProtection:          "GeneralProtection",
	Page:                       "Page",
	X86Fpe:                     "X86Fpe",
	AlignmentCheck:             "AlignmentCheck",
	MachineCheck:               "MachineCheck",
	SimdFpen:                   "SimdFpen",
	VirtualizationException:    "VirtualizationException",
	ControlProtectionException: "ControlProtectionException",
}

// X86_64FaultFromCode converts a raw vector, failing if the number is unknown
func X86_64FaultFromCode(code int64) (X86_64Fault, error) {
	f := X86_64Fault(code)
	if _, ok := x86_64Names[f]; !ok {
		return 0, &ClassificationError{Arch: ArchX86_64, Code: code, Err: ErrUnknownFaultCode}
	}
	return f, nil
}

// String returns the category name
func (f X86_64Fault) String() string {
	if name, ok := x86_64Names[f]; ok {
		return name
	}
	return fmt.Sprintf("X86_64Fault(%d)", int64(f))
}

// X86_64Faults lists every category in the table ordered by code
func X86_64Faults() []X86_64Fault {
	out := make([]X86_64Fault, 0, len(x86_64Names))
	for f := range x86_64Names {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fault is a classified fault tagged with its architecture.
// The zero value is not a valid fault.
type Fault struct {
	arch Architecture
	code int64
}

// FromX86_64 wraps an x86-64 category
func FromX86_64(f X86_64Fault) Fault {
	return Fault{arch: ArchX86_64, code: int64(f)}
}

// Arch returns the architecture tag
func (f Fault) Arch() Architecture { return f.arch }

// Code returns the raw numeric code the fault was classified from
func (f Fault) Code() int64 { return f.code }

// X86_64 returns the x86-64 category if f belongs to that architecture
func (f Fault) X86_64() (X86_64Fault, bool) {
	if f.arch != ArchX86_64 {
		return 0, false
	}
	return X86_64Fault(f.code), true
}

// Name returns the category name without the architecture
func (f Fault) Name() string {
	switch f.arch {
	case ArchX86_64:
		return X86_64Fault(f.code).String()
	}
	return fmt.Sprintf("%d", f.code)
}

// String renders the fault as "<arch>/<name>"
func (f Fault) String() string {
	return fmt.Sprintf("%s/%s", f.arch, f.Name())
}

type faultJSON struct {
	Arch  Architecture `json:"arch"`
	Fault string       `json:"fault"`
	Code  int64        `json:"code"`
}

// MarshalJSON encodes the fault with both its name and raw code
func (f Fault) MarshalJSON() ([]byte, error) {
	return json.Marshal(faultJSON{Arch: f.arch, Fault: f.Name(), Code: f.code})
}

// UnmarshalJSON re-classifies the stored code so invalid records are rejected
func (f *Fault) UnmarshalJSON(data []byte) error {
	var raw faultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Classify(raw.Arch, raw.Code)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Classify maps a raw code to its named category for the given architecture.
// It never returns a default category: unknown codes are a *ClassificationError.
func Classify(arch Architecture, code int64) (Fault, error) {
	switch arch {
	case ArchX86_64:
		f, err := X86_64FaultFromCode(code)
		if err != nil {
			return Fault{}, err
		}
		return FromX86_64(f), nil
	}
	return Fault{}, &ClassificationError{Arch: arch, Code: code, Err: ErrUnknownArchitecture}
}

// ParseFault looks a category up by name, case-insensitively
func ParseFault(arch Architecture, name string) (Fault, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	switch arch {
	case ArchX86_64:
		for f, n := range x86_64Names {
			if strings.ToLower(n) == want {
				return FromX86_64(f), nil
			}
		}
		return Fault{}, fmt.Errorf("%w: %s/%s", ErrUnknownFaultName, arch, name)
	}
	return Fault{}, fmt.Errorf("%w: %q", ErrUnknownArchitecture, arch)
}

// ClassificationError carries the raw code and architecture of a failed classification
// so the taxonomy can be extended later.
type ClassificationError struct {
	Arch Architecture
	Code int64
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s code %d: %v", e.Arch, e.Code, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }
