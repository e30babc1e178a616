// Package regulations owns the regulation catalog, its visibility predicate
// and the append-only version ledger.
package regulations

import (
	"fmt"
	"time"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

var (
	ErrRegulationNotFound = fmt.Errorf("regulation %w", httpx.ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("regulation version %w", httpx.ErrNotFound)
	ErrTagNotFound        = fmt.Errorf("tag %w", httpx.ErrNotFound)
	ErrAttachmentMissing  = fmt.Errorf("attachment %w", httpx.ErrNotFound)
	ErrDuplicateCode      = fmt.Errorf("regulation code already in use: %w", httpx.ErrDuplicate)
	// ErrDuplicateVersion is returned when (regulation, version_number) already exists.
	ErrDuplicateVersion = fmt.Errorf("version number already recorded: %w", httpx.ErrDuplicate)
)

// Category classifies a regulation document.
type Category string

const (
	CategoryPolicy     Category = "POLICY"
	CategoryRegulation Category = "REGULATION"
	CategoryGuideline  Category = "GUIDELINE"
	CategoryManual     Category = "MANUAL"
)

// Status is the lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusAbolished Status = "ABOLISHED"
)

// Scope selects who a regulation applies to.
type Scope string

const (
	ScopeAll  Scope = "ALL"
	ScopeDept Scope = "DEPT"
)

// AccessLevel gates visibility after the company check.
type AccessLevel string

const (
	AccessAll         AccessLevel = "ALL"
	AccessDepartments AccessLevel = "DEPARTMENTS"
	AccessUsers       AccessLevel = "USERS"
)

// ChangeType is the kind of ledger event.
type ChangeType string

const (
	ChangeCreate  ChangeType = "CREATE"
	ChangeRevise  ChangeType = "REVISE"
	ChangeAbolish ChangeType = "ABOLISH"
)

var (
	categoryLabels = map[Category]string{
		CategoryPolicy:     "정책/방침",
		CategoryRegulation: "규정",
		CategoryGuideline:  "지침",
		CategoryManual:     "매뉴얼/가이드라인",
	}
	categoryPrefixes = map[Category]string{
		CategoryPolicy:     "POL",
		CategoryRegulation: "REG",
		CategoryGuideline:  "GUI",
		CategoryManual:     "MAN",
	}
	statusLabels = map[Status]string{
		StatusActive:    "시행중",
		StatusAbolished: "폐지",
	}
	scopeLabels = map[Scope]string{
		ScopeAll:  "전 임직원",
		ScopeDept: "소속부서",
	}
	accessLabels = map[AccessLevel]string{
		AccessAll:         "전체 직원",
		AccessDepartments: "지정된 부서",
		AccessUsers:       "지정된 직원",
	}
	changeLabels = map[ChangeType]string{
		ChangeCreate:  "제정",
		ChangeRevise:  "개정",
		ChangeAbolish: "폐지",
	}
)

// Categories lists categories in catalog order.
func Categories() []Category {
	return []Category{CategoryPolicy, CategoryRegulation, CategoryGuideline, CategoryManual}
}

func (c Category) Label() string    { return labelOr(categoryLabels, c) }
func (s Status) Label() string      { return labelOr(statusLabels, s) }
func (s Scope) Label() string       { return labelOr(scopeLabels, s) }
func (a AccessLevel) Label() string { return labelOr(accessLabels, a) }
func (c ChangeType) Label() string  { return labelOr(changeLabels, c) }

// Valid reports a known category.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Valid reports a known change type.
func (c ChangeType) Valid() bool {
	_, ok := changeLabels[c]
	return ok
}

// MandatoryLabel renders the 의무준수 column.
func MandatoryLabel(mandatory bool) string {
	if mandatory {
		return "의무"
	}
	return "비의무"
}

func labelOr[K ~string](labels map[K]string, key K) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return string(key)
}

// Regulation is one catalog entry.
type Regulation struct {
	ID                  int64       `json:"id"`
	Code                string      `json:"code"`
	Title               string      `json:"title"`
	Category            Category    `json:"category"`
	Description         string      `json:"description"`
	IsMandatory         bool        `json:"is_mandatory"`
	Scope               Scope       `json:"scope"`
	Status              Status      `json:"status"`
	ResponsibleDeptID   int64       `json:"responsible_dept_id"`
	ResponsibleDeptName string      `json:"responsible_dept_name"`
	Manager             string      `json:"manager"`
	ManagerPrimary      string      `json:"manager_primary"`
	GroupName           string      `json:"group_name"`
	CurrentVersion      string      `json:"current_version"`
	EffectiveDate       *time.Time  `json:"effective_date,omitempty"`
	ExpiryDate          *time.Time  `json:"expiry_date,omitempty"`
	AbolishedDate       *time.Time  `json:"abolished_date,omitempty"`
	ParentID            *int64      `json:"parent_id,omitempty"`
	RelatedIDs          []int64     `json:"related_ids,omitempty"`
	AccessLevel         AccessLevel `json:"access_level"`
	AllowedCompanies    []int64     `json:"allowed_companies"`
	AllowedDepartments  []int64     `json:"allowed_departments,omitempty"`
	AllowedUsers        []int64     `json:"allowed_users,omitempty"`
	IsPublic            bool        `json:"is_public"`
	ReferenceURL        string      `json:"reference_url"`
	Content             string      `json:"content,omitempty"`
	OriginalFile        string      `json:"original_file,omitempty"`
	Tags                []string    `json:"tags,omitempty"`
	CreatedBy           *int64      `json:"created_by,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// ResponsibleDepartment implements rbac.Resource.
func (r Regulation) ResponsibleDepartment() int64 {
	return r.ResponsibleDeptID
}

// Version is one ledger entry.
type Version struct {
	ID              int64      `json:"id"`
	RegulationID    int64      `json:"regulation_id"`
	VersionNumber   string     `json:"version_number"`
	ChangeType      ChangeType `json:"change_type"`
	ChangeReason    string     `json:"change_reason"`
	ChangeSummary   string     `json:"change_summary"`
	ContentFile     string     `json:"content_file,omitempty"`
	ContentSnapshot string     `json:"-"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApproverName    string     `json:"approver_name,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedBy       *int64     `json:"created_by,omitempty"`
	CreatorName     string     `json:"creator_name,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RegulationInput is the create/update payload.
type RegulationInput struct {
	Code               string   `json:"code" validate:"max=50"`
	Title              string   `json:"title" validate:"required,max=200"`
	Category           string   `json:"category" validate:"required,oneof=POLICY REGULATION GUIDELINE MANUAL"`
	Description        string   `json:"description"`
	IsMandatory        bool     `json:"is_mandatory"`
	Scope              string   `json:"scope" validate:"omitempty,oneof=ALL DEPT"`
	ResponsibleDeptID  int64    `json:"responsible_dept_id"`
	Manager            string   `json:"manager" validate:"max=200"`
	ManagerPrimary     string   `json:"manager_primary" validate:"max=200"`
	GroupName          string   `json:"group_name" validate:"max=100"`
	CurrentVersion     string   `json:"current_version" validate:"max=20"`
	EffectiveDate      string   `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	ExpiryDate         string   `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	ParentID           *int64   `json:"parent_id"`
	RelatedIDs         []int64  `json:"related_ids"`
	AccessLevel        string   `json:"access_level" validate:"omitempty,oneof=ALL DEPARTMENTS USERS"`
	AllowedCompanies   []int64  `json:"allowed_companies"`
	AllowedDepartments []int64  `json:"allowed_departments"`
	AllowedUsers       []int64  `json:"allowed_users"`
	IsPublic           bool     `json:"is_public"`
	ReferenceURL       string   `json:"reference_url" validate:"omitempty,url,max=500"`
	Content            string   `json:"content"`
	Tags               []string `json:"tags"`
}

// AppendInput is one ledger append request.
type AppendInput struct {
	VersionNumber string      `json:"version_number" validate:"required,max=20"`
	ChangeType    string      `json:"change_type" validate:"required,oneof=CREATE REVISE ABOLISH"`
	ChangeReason  string      `json:"change_reason" validate:"required"`
	ChangeSummary string      `json:"change_summary"`
	Attachment    *Attachment `json:"-"`
}

// ListFilters mirrors the catalog search form.
type ListFilters struct {
	Keyword           string
	Category          Category
	Status            Status
	Mandatory         string // mandatory | non_mandatory | not_applicable
	ResponsibleDeptID *int64
	Group             string
	Manager           string
	Publicity         string // all | executive | private
	Page              int
	PerPage           int
}

// CategoryCount is one row of the per-category summary.
type CategoryCount struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
}

// TagCount is a tag with the number of regulations carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Detail bundles a regulation with its ledger and links.
type Detail struct {
	Regulation Regulation   `json:"regulation"`
	Versions   []Version    `json:"versions"`
	Related    []Regulation `json:"related"`
	Children   []Regulation `json:"children"`
	Favorite   bool         `json:"favorite"`
}

// DownloadLog records one attachment download.
type DownloadLog struct {
	RegulationID int64
	VersionID    *int64
	UserID       int64
	IPAddress    string
}
