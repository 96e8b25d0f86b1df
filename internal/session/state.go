package session

import (
	"github.com/felixgeelhaar/bankshield/internal/api"
)

// Status is the state of the session state machine
type Status int

const (
	// Unauthenticated holds no credential
	Unauthenticated Status = iota
	// Restoring is validating a stored credential at startup
	Restoring
	// Authenticating is waiting for a login response
	Authenticating
	// Authenticated has a validated credential and user profile
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Restoring:
		return "restoring"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// RoleAdmin sees every department
const RoleAdmin = "admin"

// Snapshot is an immutable view of the session at one point in time
type Snapshot struct {
	Status      Status
	User        *api.User
	Departments []api.Department
	// LastError is the most recent login or restore failure, cleared on the next attempt
	LastError error
	// ErrorMessage is LastError phrased for display
	ErrorMessage string
}

// IsAuthenticated reports whether a user is signed in
func (s Snapshot) IsAuthenticated() bool {
	return s.Status == Authenticated && s.User != nil
}

// IsRestoring reports whether a stored credential is still being validated
func (s Snapshot) IsRestoring() bool {
	return s.Status == Restoring
}

// HasPermission reports whether name is in the permission set
func (s Snapshot) HasPermission(name string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	for _, p := range s.User.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// HasDepartmentAccess is true for admins and for members of the department
func (s Snapshot) HasDepartmentAccess(departmentID string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	if s.User.Role == RoleAdmin {
		return true
	}
	for _, d := range s.User.Departments {
		if d.String() == departmentID {
			return true
		}
	}
	return false
}

// HasRole reports whether the user holds any of roles
func (s Snapshot) HasRole(roles ...string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	for _, r := range roles {
		if s.User.Role == r {
			return true
		}
	}
	return false
}

func cloneUser(u *api.User) *api.User {
	if u == nil {
		return nil
	}
	c := *u
	c.Permissions = append([]string(nil), u.Permissions...)
	c.Departments = append([]api.ID(nil), u.Departments...)
	return &c
}
