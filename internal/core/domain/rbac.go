package domain

// Capability names a permission a principal may hold.
type Capability string

const (
	// CapabilitySubmitChanges allows proposing change requests.
	CapabilitySubmitChanges Capability = "changes.submit"
	// CapabilityApproveChanges allows deciding change requests.
	CapabilityApproveChanges Capability = "changes.approve"
	// CapabilitySecurityAdmin allows unlocking accounts.
	CapabilitySecurityAdmin Capability = "security.admin"
)

// HasCapability reports whether the principal holds the named capability.
func (p Principal) HasCapability(c Capability) bool {
	for _, held := range p.Capabilities {
		if held == string(c) {
			return true
		}
	}
	return false
}
