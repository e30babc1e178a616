// Package commoncodes manages the generic lookup codes (groups, categories,
// statuses and custom values) that feed selection lists.
package commoncodes

import (
	"fmt"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

var (
	ErrCodeNotFound  = fmt.Errorf("common code %w", httpx.ErrNotFound)
	ErrDuplicateCode = fmt.Errorf("common code %w", httpx.ErrDuplicate)
	// ErrSystemCode rejects deletion of codes flagged is_system.
	ErrSystemCode = fmt.Errorf("%w: system code cannot be deleted", httpx.ErrForbidden)
)

// Type partitions codes; (type, code) is unique.
type Type string

const (
	TypeGroup       Type = "GROUP"
	TypeCategory    Type = "CATEGORY"
	TypeStatus      Type = "STATUS"
	TypeScope       Type = "SCOPE"
	TypeAccessLevel Type = "ACCESS_LEVEL"
	TypeChangeType  Type = "CHANGE_TYPE"
	TypeCustom      Type = "CUSTOM"
)

var typeLabels = map[Type]string{
	TypeGroup:       "그룹",
	TypeCategory:    "분류",
	TypeStatus:      "상태",
	TypeScope:       "적용범위",
	TypeAccessLevel: "접근권한",
	TypeChangeType:  "변경유형",
	TypeCustom:      "사용자정의",
}

// Types lists code types in display order.
func Types() []Type {
	return []Type{TypeGroup, TypeCategory, TypeStatus, TypeScope, TypeAccessLevel, TypeChangeType, TypeCustom}
}

// Label returns the Korean display name.
func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Valid reports known types.
func (t Type) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// CommonCode is one lookup value.
type CommonCode struct {
	ID          int64     `json:"id"`
	Type        Type      `json:"code_type"`
	TypeLabel   string    `json:"code_type_label"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
	IsSystem    bool      `json:"is_system"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input is the create/update payload. IsActive defaults to true.
type Input struct {
	CodeType    string `json:"code_type" validate:"required,oneof=GROUP CATEGORY STATUS SCOPE ACCESS_LEVEL CHANGE_TYPE CUSTOM"`
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
	IsActive    *bool  `json:"is_active"`
	ParentID    *int64 `json:"parent_id"`
}

// Filters narrows List. Active is "", "true" or "false".
type Filters struct {
	Type    Type
	Active  string
	Keyword string
}

// Choice is a (code, name) pair for selection lists.
type Choice struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
