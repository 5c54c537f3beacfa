package enums

// Permission is a capability granted to an admin by the authorization gate.
type Permission string

const (
	PermissionSmsAttach       Permission = "sms:attach"
	PermissionSmsParserUpdate Permission = "sms:parser:update"
	PermissionAuditView       Permission = "audit:view"
	PermissionPaymentsRefund  Permission = "payments:refund"
)

var permissions = newSet("permission",
	PermissionSmsAttach, PermissionSmsParserUpdate, PermissionAuditView, PermissionPaymentsRefund)

func (p Permission) String() string { return string(p) }

// IsValid reports whether the permission is one the service understands.
// Tokens may carry others; they are ignored.
func (p Permission) IsValid() bool { return permissions.has(p) }
