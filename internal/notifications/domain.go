// Package notifications delivers in-app notices: regulation change fan-out,
// review requests, admin broadcasts and the periodic expiry sweep.
package notifications

import (
	"fmt"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

// ErrNotificationNotFound is also returned for notifications owned by
// someone else.
var ErrNotificationNotFound = fmt.Errorf("notification %w", httpx.ErrNotFound)

// Type classifies a notification.
type Type string

const (
	TypeChange Type = "CHANGE"
	TypeExpiry Type = "EXPIRY"
	TypeReview Type = "REVIEW"
	TypeSystem Type = "SYSTEM"
)

var typeLabels = map[Type]string{
	TypeChange: "제개정",
	TypeExpiry: "만료예정",
	TypeReview: "검토요청",
	TypeSystem: "시스템",
}

// Label returns the Korean display name.
func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Notification is one inbox entry.
type Notification struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	RegulationID *int64     `json:"regulation_id,omitempty"`
	Type         Type       `json:"notification_type"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	IsRead       bool       `json:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Setting holds a user's opt-outs. Users without a stored row get
// DefaultSetting.
type Setting struct {
	UserID            int64 `json:"user_id"`
	ReceiveChange     bool  `json:"receive_change"`
	ReceiveExpiry     bool  `json:"receive_expiry"`
	ReceiveReview     bool  `json:"receive_review"`
	EmailNotification bool  `json:"email_notification"`
}

// DefaultSetting enables every in-app category and disables email.
func DefaultSetting(userID int64) Setting {
	return Setting{UserID: userID, ReceiveChange: true, ReceiveExpiry: true, ReceiveReview: true}
}

// Accepts reports whether the user wants notifications of type t. SYSTEM
// notices cannot be opted out of.
func (s Setting) Accepts(t Type) bool {
	switch t {
	case TypeChange:
		return s.ReceiveChange
	case TypeExpiry:
		return s.ReceiveExpiry
	case TypeReview:
		return s.ReceiveReview
	}
	return true
}

// SettingInput is the settings form payload.
type SettingInput struct {
	ReceiveChange     bool `json:"receive_change"`
	ReceiveExpiry     bool `json:"receive_expiry"`
	ReceiveReview     bool `json:"receive_review"`
	EmailNotification bool `json:"email_notification"`
}

// Recipient is an active user resolved at fan-out time, with their settings.
type Recipient struct {
	UserID  int64
	Email   string
	Setting Setting
}

// RecipientQuery selects active users. Zero-valued fields do not filter.
type RecipientQuery struct {
	DepartmentID  *int64
	Roles         []rbac.Role
	UserIDs       []int64
	ExcludeUserID int64
}

// Broadcast targets.
const (
	TargetAll  = "all"
	TargetRole = "role"
	TargetUser = "user"
)

// BroadcastInput is the admin notice form.
type BroadcastInput struct {
	Title   string  `json:"title" validate:"required,max=200"`
	Message string  `json:"message" validate:"required"`
	Type    string  `json:"notification_type" validate:"omitempty,oneof=CHANGE EXPIRY REVIEW SYSTEM"`
	Target  string  `json:"target" validate:"omitempty,oneof=all role user"`
	Role    string  `json:"target_role"`
	UserIDs []int64 `json:"target_users"`
}

// SweepResult summarises one expiry sweep run.
type SweepResult struct {
	Regulations   int `json:"regulations"`
	Notifications int `json:"notifications"`
}
