package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/auth"
)

func TestIsAuthorizedForJobOwner(t *testing.T) {
	claims := &auth.Claims{UserID: "user-1", Role: "user"}
	require.True(t, auth.IsAuthorizedForJob(claims, "user-1"))
}

func TestIsAuthorizedForJobNonOwner(t *testing.T) {
	claims := &auth.Claims{UserID: "user-1", Role: "user"}
	require.False(t, auth.IsAuthorizedForJob(claims, "user-2"))
}

func TestIsAuthorizedForJobAdminBypassesOwnership(t *testing.T) {
	claims := &auth.Claims{UserID: "user-1", Role: auth.RoleAdmin}
	require.True(t, auth.IsAuthorizedForJob(claims, "someone-else"))
}

func TestIsAuthorizedForJobNilClaims(t *testing.T) {
	require.False(t, auth.IsAuthorizedForJob(nil, "user-1"))
}

func TestIsAdmin(t *testing.T) {
	require.True(t, auth.IsAdmin(&auth.Claims{Role: auth.RoleAdmin}))
	require.False(t, auth.IsAdmin(&auth.Claims{Role: "user"}))
	require.False(t, auth.IsAdmin(nil))
}
