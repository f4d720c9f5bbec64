package audit

// Tenant lifecycle actions recorded by the tenancy layer.
const (
	ActionSwitch    = "tenant.switch"
	ActionReset     = "tenant.reset"
	ActionCreate    = "tenant.create"
	ActionDrop      = "tenant.drop"
	ActionAccess    = "tenant.access"
	ActionViolation = "tenant.violation"
	ActionError     = "tenant.error"
)
