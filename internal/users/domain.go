package users

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

var (
	ErrUserNotFound      = fmt.Errorf("user %w", httpx.ErrNotFound)
	ErrDuplicateUsername = fmt.Errorf("username already in use: %w", httpx.ErrDuplicate)
)

// User represents an employee account.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	EmployeeID     string    `json:"employee_id"`
	CompanyID      *int64    `json:"company_id,omitempty"`
	DepartmentID   *int64    `json:"department_id,omitempty"`
	DepartmentName string    `json:"department_name,omitempty"`
	Role           rbac.Role `json:"role"`
	Position       string    `json:"position"`
	Phone          string    `json:"phone"`
	IsSuperuser    bool      `json:"is_superuser"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FullName joins family and given name the Korean way, falling back to the
// login name.
func FullName(lastName, firstName, username string) string {
	name := strings.TrimSpace(lastName + firstName)
	if name == "" {
		return username
	}
	return name
}

// FullName returns the display name.
func (u User) FullName() string {
	return FullName(u.LastName, u.FirstName, u.Username)
}

// CreateInput is the admin payload for new accounts.
type CreateInput struct {
	Username     string `json:"username" validate:"required,max=150"`
	Password     string `json:"password" validate:"required,min=8"`
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	FirstName    string `json:"first_name" validate:"max=150"`
	LastName     string `json:"last_name" validate:"max=150"`
	EmployeeID   string `json:"employee_id" validate:"max=20"`
	CompanyID    *int64 `json:"company_id"`
	DepartmentID *int64 `json:"department_id"`
	Role         string `json:"role" validate:"required,oneof=GENERAL DEPT_MANAGER COMPLIANCE ADMIN"`
	Position     string `json:"position" validate:"max=50"`
	Phone        string `json:"phone" validate:"max=20"`
	IsSuperuser  bool   `json:"is_superuser"`
}

// UpdateInput is the admin payload for existing accounts. An empty Password
// keeps the current one.
type UpdateInput struct {
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	Password     string `json:"password" validate:"omitempty,min=8"`
	FirstName    string `json:"first_name" validate:"max=150"`
	LastName     string `json:"last_name" validate:"max=150"`
	EmployeeID   string `json:"employee_id" validate:"max=20"`
	CompanyID    *int64 `json:"company_id"`
	DepartmentID *int64 `json:"department_id"`
	Role         string `json:"role" validate:"required,oneof=GENERAL DEPT_MANAGER COMPLIANCE ADMIN"`
	Position     string `json:"position" validate:"max=50"`
	Phone        string `json:"phone" validate:"max=20"`
	IsSuperuser  bool   `json:"is_superuser"`
	IsActive     bool   `json:"is_active"`
}

// ProfileInput is what users may change about themselves.
type ProfileInput struct {
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Position  string `json:"position" validate:"max=50"`
	Phone     string `json:"phone" validate:"max=20"`
	Password  string `json:"password" validate:"omitempty,min=8"`
}

// ListFilters narrows the directory listing.
type ListFilters struct {
	Page         int
	PerPage      int
	Search       string
	Role         rbac.Role
	DepartmentID *int64
	ActiveOnly   bool
}
