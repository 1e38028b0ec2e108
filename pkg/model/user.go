package model

import "strings"

// Role labels issued by the library backend. Roles are free text on the
// wire; these are the ones the front ends make decisions on.
const (
	RoleAdmin     = "ADMIN"
	RoleLibrarian = "LIBRARIAN"
	RoleMember    = "MEMBER"
)

// StaffRoles are the roles allowed into the admin panel and book editing.
var StaffRoles = []string{RoleAdmin, RoleLibrarian}

// UserProfile is the authenticated user as returned by GET /users/profile.
// It is replaced wholesale on every fetch and never patched.
type UserProfile struct {
	ID               string `json:"id" yaml:"id"`
	Email            string `json:"email" yaml:"email"`
	FirstName        string `json:"firstName,omitempty" yaml:"first_name,omitempty"`
	LastName         string `json:"lastName,omitempty" yaml:"last_name,omitempty"`
	Role             string `json:"role,omitempty" yaml:"role,omitempty"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled,omitempty" yaml:"two_factor_enabled,omitempty"`
}

// DisplayName returns "First Last" when either part is known, else the email.
func (u *UserProfile) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsStaff reports whether the user holds one of StaffRoles.
func (u *UserProfile) IsStaff() bool {
	if u == nil || u.Role == "" {
		return false
	}
	role := strings.ToUpper(u.Role)
	for _, r := range StaffRoles {
		if role == r {
			return true
		}
	}
	return false
}

// UserRef is the abbreviated user embedded in reservations and loans.
type UserRef struct {
	ID        string `json:"id" yaml:"id"`
	FirstName string `json:"firstName,omitempty" yaml:"first_name,omitempty"`
	LastName  string `json:"lastName,omitempty" yaml:"last_name,omitempty"`
	Email     string `json:"email" yaml:"email"`
}
