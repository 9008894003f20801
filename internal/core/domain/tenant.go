package domain

// Tenant identifies a remote organization the authenticated credentials
// grant access to. The connector resolves exactly one to operate against.
type Tenant struct {
	ID   string `json:"tenant_id"`
	Name string `json:"tenant_name"`
	Type string `json:"tenant_type"`
}
