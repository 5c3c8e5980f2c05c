package security

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPermissionDenied matches every CapabilityError via errors.Is.
var ErrPermissionDenied = errors.New("permission denied")

// Capability represents a permission that a script can be granted.
// Capabilities are hierarchical - granting a parent capability
// implicitly grants all child capabilities.
type Capability string

// Core capabilities.
const (
	// CapabilityProcess grants every process capability.
	CapabilityProcess Capability = "process"

	// CapabilitySpawn allows spawning child processes and awaiting them.
	CapabilitySpawn Capability = "process.spawn"

	// CapabilitySignal allows delivering signals to processes.
	CapabilitySignal Capability = "process.signal"

	// CapabilityFilesystem grants every filesystem capability.
	CapabilityFilesystem Capability = "filesystem"

	// CapabilityFileRead allows reading files from the filesystem.
	CapabilityFileRead Capability = "filesystem.read"

	// CapabilityFileWrite allows writing files to the filesystem.
	CapabilityFileWrite Capability = "filesystem.write"
)

// CapabilityInfo provides metadata about a capability.
type CapabilityInfo struct {
	// Name is the capability identifier.
	Name Capability

	// DisplayName is a human-readable name.
	DisplayName string

	// Description explains what the capability allows.
	Description string

	// Parent is the parent capability (for hierarchical capabilities).
	Parent Capability

	// RiskLevel indicates how dangerous this capability is.
	RiskLevel RiskLevel
}

// RiskLevel indicates the security risk of a capability.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh

	// RiskCritical indicates maximum security risk.
	RiskCritical
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

var capabilityRegistry = map[Capability]CapabilityInfo{
	CapabilityProcess: {
		Name:        CapabilityProcess,
		DisplayName: "Processes",
		Description: "Spawn, await and signal processes",
		RiskLevel:   RiskCritical,
	},
	CapabilitySpawn: {
		Name:        CapabilitySpawn,
		DisplayName: "Process Spawn",
		Description: "Spawn child processes and await their exit",
		Parent:      CapabilityProcess,
		RiskLevel:   RiskCritical,
	},
	CapabilitySignal: {
		Name:        CapabilitySignal,
		DisplayName: "Process Signal",
		Description: "Send signals to any process id",
		Parent:      CapabilityProcess,
		RiskLevel:   RiskCritical,
	},
	CapabilityFilesystem: {
		Name:        CapabilityFilesystem,
		DisplayName: "Filesystem",
		Description: "Read and write files",
		RiskLevel:   RiskHigh,
	},
	CapabilityFileRead: {
		Name:        CapabilityFileRead,
		DisplayName: "File Read",
		Description: "Read files from the filesystem",
		Parent:      CapabilityFilesystem,
		RiskLevel:   RiskMedium,
	},
	CapabilityFileWrite: {
		Name:        CapabilityFileWrite,
		DisplayName: "File Write",
		Description: "Write files to the filesystem",
		Parent:      CapabilityFilesystem,
		RiskLevel:   RiskHigh,
	},
}

// GetCapabilityInfo returns information about a capability.
func GetCapabilityInfo(cap Capability) (CapabilityInfo, bool) {
	info, ok := capabilityRegistry[cap]
	return info, ok
}

// IsValidCapability returns true if the capability is known.
func IsValidCapability(cap Capability) bool {
	_, ok := capabilityRegistry[cap]
	return ok
}

// ParseCapability validates a capability name from configuration.
func ParseCapability(name string) (Capability, error) {
	cap := Capability(strings.TrimSpace(name))
	if !IsValidCapability(cap) {
		return "", fmt.Errorf("unknown capability %q", name)
	}
	return cap, nil
}

// IsChildOf returns true if child is a child of parent.
func IsChildOf(child, parent Capability) bool {
	return strings.HasPrefix(string(child), string(parent)+".")
}

// ImpliesCapability returns true if having 'granted' implies having 'required'.
func ImpliesCapability(granted, required Capability) bool {
	if granted == required {
		return true
	}
	return IsChildOf(required, granted)
}

// CapabilityError represents a capability-related error.
type CapabilityError struct {
	Capability Capability
	Operation  string
	Message    string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("capability %q required for %s: %s", e.Capability, e.Operation, e.Message)
	}
	return fmt.Sprintf("capability %q: %s", e.Capability, e.Message)
}

// Is reports whether target is ErrPermissionDenied.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(cap Capability, operation, message string) *CapabilityError {
	return &CapabilityError{
		Capability: cap,
		Operation:  operation,
		Message:    message,
	}
}
