package auth

// RoleAdmin is the role value that authorizes access to any job and to
// admin-only endpoints regardless of ownership.
const RoleAdmin = "admin"

// IsAuthorizedForJob implements the fabric's one authorization rule: a
// session is authorized iff the authenticated subject owns the job or
// holds the admin role.
func IsAuthorizedForJob(claims *Claims, ownerID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == RoleAdmin {
		return true
	}
	return claims.UserID == ownerID
}

// IsAdmin reports whether claims hold the admin role, used to gate
// admin-only endpoints such as connection stats.
func IsAdmin(claims *Claims) bool {
	return claims != nil && claims.Role == RoleAdmin
}
