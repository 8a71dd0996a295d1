package models

import (
	"strings"
	"time"
)

// UserRole is one of the three RBAC roles. Admins pass every role check.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleAccountant UserRole = "accountant"
	RoleTeacher    UserRole = "teacher"
)

// Roles lists every assignable role.
var Roles = []UserRole{RoleAdmin, RoleAccountant, RoleTeacher}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole accepts any casing and surrounding whitespace.
func ParseRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// User is a row of the users table. The password hash never serializes.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        *string    `db:"email" json:"email,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination is the page block of list envelopes.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and size the same way list queries do.
func NewPagination(page, size, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return &Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
		TotalPages: (total + size - 1) / size,
	}
}

// Offset is the row offset of the current page.
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
