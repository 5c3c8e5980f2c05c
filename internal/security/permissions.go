package security

import (
	"path/filepath"
	"strings"
	"sync"
)

// PermissionChecker validates permissions for script operations.
type PermissionChecker struct {
	mu sync.RWMutex

	// Granted capabilities
	capabilities map[Capability]bool

	// File system restrictions (normalized absolute paths)
	allowedPaths  []string
	blockedPaths  []string
	workspacePath string

	// Script identity
	name string
}

// NewPermissionChecker creates a new permission checker.
func NewPermissionChecker(name string) *PermissionChecker {
	return &PermissionChecker{
		capabilities: make(map[Capability]bool),
		name:         name,
	}
}

// Name returns the identity the checker was created for.
func (pc *PermissionChecker) Name() string {
	return pc.name
}

// Grant grants a capability.
func (pc *PermissionChecker) Grant(cap Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.capabilities[cap] = true
}

// Revoke revokes a capability.
func (pc *PermissionChecker) Revoke(cap Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.capabilities, cap)
}

// GrantAll grants multiple capabilities.
func (pc *PermissionChecker) GrantAll(caps []Capability) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, cap := range caps {
		pc.capabilities[cap] = true
	}
}

// HasCapability returns true if the capability is granted.
func (pc *PermissionChecker) HasCapability(cap Capability) bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if pc.capabilities[cap] {
		return true
	}

	// A granted parent implies its children
	for granted := range pc.capabilities {
		if ImpliesCapability(granted, cap) {
			return true
		}
	}

	return false
}

// CheckCapability returns an error if the capability is not granted.
func (pc *PermissionChecker) CheckCapability(cap Capability) error {
	if !pc.HasCapability(cap) {
		return NewCapabilityError(cap, "", "not granted")
	}
	return nil
}

// Capabilities returns all granted capabilities.
func (pc *PermissionChecker) Capabilities() []Capability {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	caps := make([]Capability, 0, len(pc.capabilities))
	for cap := range pc.capabilities {
		caps = append(caps, cap)
	}
	return caps
}

// CheckRun checks if spawning and awaiting child processes is permitted.
func (pc *PermissionChecker) CheckRun() error {
	if !pc.HasCapability(CapabilitySpawn) {
		return NewCapabilityError(CapabilitySpawn, "run process", "not granted")
	}
	return nil
}

// CheckSignal checks if delivering signals to processes is permitted.
func (pc *PermissionChecker) CheckSignal() error {
	if !pc.HasCapability(CapabilitySignal) {
		return NewCapabilityError(CapabilitySignal, "kill process", "not granted")
	}
	return nil
}

// SetWorkspacePath sets the workspace root path for file access checks.
// The path is normalized to an absolute path.
func (pc *PermissionChecker) SetWorkspacePath(path string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.workspacePath = normalizePath(path)
}

// AllowPath adds a path to the allowed list.
func (pc *PermissionChecker) AllowPath(path string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.allowedPaths = append(pc.allowedPaths, normalizePath(path))
}

// BlockPath adds a path to the blocked list.
func (pc *PermissionChecker) BlockPath(path string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.blockedPaths = append(pc.blockedPaths, normalizePath(path))
}

func normalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// CheckFileRead checks if reading a file is permitted.
func (pc *PermissionChecker) CheckFileRead(path string) error {
	if !pc.HasCapability(CapabilityFileRead) {
		return NewCapabilityError(CapabilityFileRead, "read file", "not granted")
	}

	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return pc.checkPathAccess(path, CapabilityFileRead, "read file")
}

// CheckFileWrite checks if writing a file is permitted.
func (pc *PermissionChecker) CheckFileWrite(path string) error {
	if !pc.HasCapability(CapabilityFileWrite) {
		return NewCapabilityError(CapabilityFileWrite, "write file", "not granted")
	}

	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return pc.checkPathAccess(path, CapabilityFileWrite, "write file")
}

// checkPathAccess validates path access against allowed/blocked lists.
// The caller holds pc.mu.
func (pc *PermissionChecker) checkPathAccess(path string, cap Capability, operation string) error {
	absPath := normalizePath(path)

	// Blocklist takes precedence
	for _, blocked := range pc.blockedPaths {
		if isWithinPath(absPath, blocked) {
			return NewCapabilityError(cap, operation, "path is blocked")
		}
	}

	if len(pc.allowedPaths) > 0 {
		for _, allowedPath := range pc.allowedPaths {
			if isWithinPath(absPath, allowedPath) {
				return nil
			}
		}
		return NewCapabilityError(cap, operation, "path not in allowed list")
	}

	if pc.workspacePath != "" && !isWithinPath(absPath, pc.workspacePath) {
		return NewCapabilityError(cap, operation, "path outside workspace")
	}

	return nil
}

// isWithinPath checks if target is within or equal to base.
// "/tmp/blocked" does not contain "/tmp/blockedfile".
func isWithinPath(target, base string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// PermissionSet represents a collection of permissions.
type PermissionSet struct {
	// Capabilities granted
	Capabilities []Capability

	// File system permissions
	AllowedPaths []string
	BlockedPaths []string

	// Workspace root; empty leaves the current one in place
	Workspace string
}

// ApplyPermissionSet applies a permission set to a checker.
func (pc *PermissionChecker) ApplyPermissionSet(set *PermissionSet) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.apply(set)
}

func (pc *PermissionChecker) apply(set *PermissionSet) {
	for _, cap := range set.Capabilities {
		pc.capabilities[cap] = true
	}
	for _, path := range set.AllowedPaths {
		pc.allowedPaths = append(pc.allowedPaths, normalizePath(path))
	}
	for _, path := range set.BlockedPaths {
		pc.blockedPaths = append(pc.blockedPaths, normalizePath(path))
	}
	if set.Workspace != "" {
		pc.workspacePath = normalizePath(set.Workspace)
	}
}

// Replace atomically swaps every permission for the ones in set.
func (pc *PermissionChecker) Replace(set *PermissionSet) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.reset()
	pc.apply(set)
}

// Reset clears all permissions.
func (pc *PermissionChecker) Reset() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.reset()
}

func (pc *PermissionChecker) reset() {
	pc.capabilities = make(map[Capability]bool)
	pc.allowedPaths = nil
	pc.blockedPaths = nil
	pc.workspacePath = ""
}
