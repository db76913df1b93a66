package middleware

// Keys set on gin.Context by the middleware in this package. The logger reads
// StaffIDKey and RequestIDKey by value.
const (
	// StaffIDKey holds the authenticated staff member's id (token subject).
	StaffIDKey = "staff_id"
	// StaffRoleKey holds the staff member's role claim.
	StaffRoleKey = "staff_role"
)
