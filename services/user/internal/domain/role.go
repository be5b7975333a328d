package domain

// Seeded role names.
const (
	RoleViewer  = "VIEWER"
	RoleAnalyst = "ANALYST"
	RoleAdmin   = "ADMIN"
)

// Role is resolved together with every account read.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
