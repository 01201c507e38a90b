package models

import (
	"time"
)

// TaskStatus represents task status
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Priority represents task priority
type Priority string

const (
	PriorityP0 Priority = "P0" // urgent
	PriorityP1 Priority = "P1" // high
	PriorityP2 Priority = "P2" // normal (default)
	PriorityP3 Priority = "P3" // low
)

// ListingStatus represents where a listing sits in its lifecycle
type ListingStatus string

const (
	ListingDraft     ListingStatus = "draft"
	ListingActive    ListingStatus = "active"
	ListingPending   ListingStatus = "pending"
	ListingSold      ListingStatus = "sold"
	ListingWithdrawn ListingStatus = "withdrawn"
)

// PropertyType represents the physical property category
type PropertyType string

const (
	PropertyHouse       PropertyType = "house"
	PropertyCondo       PropertyType = "condo"
	PropertyTownhouse   PropertyType = "townhouse"
	PropertyLand        PropertyType = "land"
	PropertyMultiFamily PropertyType = "multi_family"
)

// ActivityKind represents the kind of activity feed entry
type ActivityKind string

const (
	ActivityCall    ActivityKind = "call"
	ActivityEmail   ActivityKind = "email"
	ActivityMeeting ActivityKind = "meeting"
	ActivityShowing ActivityKind = "showing"
	ActivityStatus  ActivityKind = "status"
	ActivityNote    ActivityKind = "note"
	ActivitySystem  ActivityKind = "system"
)

// ContactKind represents what side of a deal a contact is on
type ContactKind string

const (
	ContactBuyer  ContactKind = "buyer"
	ContactSeller ContactKind = "seller"
	ContactVendor ContactKind = "vendor"
	ContactOther  ContactKind = "other"
)

// ShowingStatus represents the state of a scheduled showing
type ShowingStatus string

const (
	ShowingScheduled ShowingStatus = "scheduled"
	ShowingCompleted ShowingStatus = "completed"
	ShowingCancelled ShowingStatus = "cancelled"
	ShowingNoShow    ShowingStatus = "no_show"
)

// SyncStatus represents an entity's position in the sync pipeline,
// derived from its most recent action log row.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncFailed  SyncStatus = "failed"
	SyncSynced  SyncStatus = "synced"
)

// User represents a team member account
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	Role            string     `json:"role,omitempty"`
	AvatarURL       string     `json:"avatar_url,omitempty"`
	AvatarUpdatedAt *time.Time `json:"avatar_updated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Realtor represents an agent in the team directory
type Realtor struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	Name      string     `json:"name"`
	LicenseNo string     `json:"license_no,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Brokerage string     `json:"brokerage,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Contact represents a buyer, seller, or vendor
type Contact struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ContactKind `json:"kind"`
	Phone     string      `json:"phone,omitempty"`
	Email     string      `json:"email,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	DeletedAt *time.Time  `json:"deleted_at,omitempty"`
}

// Property represents a physical property record
type Property struct {
	ID           string       `json:"id"`
	Address      string       `json:"address"`
	Unit         string       `json:"unit,omitempty"`
	City         string       `json:"city,omitempty"`
	State        string       `json:"state,omitempty"`
	PostalCode   string       `json:"postal_code,omitempty"`
	PropertyType PropertyType `json:"property_type"`
	Beds         int          `json:"beds,omitempty"`
	Baths        float64      `json:"baths,omitempty"`
	Sqft         int          `json:"sqft,omitempty"`
	YearBuilt    int          `json:"year_built,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
}

// Listing represents a property being marketed
type Listing struct {
	ID            string        `json:"id"`
	PropertyID    string        `json:"property_id"`
	RealtorID     string        `json:"realtor_id,omitempty"`
	Status        ListingStatus `json:"status"`
	ListPrice     int64         `json:"list_price,omitempty"`
	CommissionPct float64       `json:"commission_pct,omitempty"`
	MLSNumber     string        `json:"mls_number,omitempty"`
	Photos        []string      `json:"photos,omitempty"`
	ListedAt      *time.Time    `json:"listed_at,omitempty"`
	ClosedAt      *time.Time    `json:"closed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	DeletedAt     *time.Time    `json:"deleted_at,omitempty"`
}

// Task represents a work item
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	ListingID   string     `json:"listing_id,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Subtask represents a checklist row under a task
type Subtask struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Activity represents an append-only activity feed entry.
// Activities are never updated after creation.
type Activity struct {
	ID         string       `json:"id"`
	Kind       ActivityKind `json:"kind"`
	Body       string       `json:"body"`
	ActorID    string       `json:"actor_id,omitempty"`
	TaskID     string       `json:"task_id,omitempty"`
	ListingID  string       `json:"listing_id,omitempty"`
	ContactID  string       `json:"contact_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Note represents a free-form note attached to a parent entity
type Note struct {
	ID         string     `json:"id"`
	ParentType string     `json:"parent_type"` // tasks, listings, properties, contacts
	ParentID   string     `json:"parent_id"`
	Body       string     `json:"body"`
	AuthorID   string     `json:"author_id,omitempty"`
	Pinned     bool       `json:"pinned,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// StatusChange represents an append-only listing status transition
type StatusChange struct {
	ID         string        `json:"id"`
	ListingID  string        `json:"listing_id"`
	FromStatus ListingStatus `json:"from_status"`
	ToStatus   ListingStatus `json:"to_status"`
	ChangedBy  string        `json:"changed_by,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Showing represents a scheduled property showing
type Showing struct {
	ID          string        `json:"id"`
	ListingID   string        `json:"listing_id"`
	ContactID   string        `json:"contact_id,omitempty"`
	RealtorID   string        `json:"realtor_id,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	DurationMin int           `json:"duration_min,omitempty"`
	Status      ShowingStatus `json:"status"`
	Feedback    string        `json:"feedback,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	DeletedAt   *time.Time    `json:"deleted_at,omitempty"`
}

// ActionType represents the type of action recorded in the action log
type ActionType string

const (
	ActionCreate     ActionType = "create"
	ActionUpdate     ActionType = "update"
	ActionDelete     ActionType = "delete"
	ActionSoftDelete ActionType = "soft_delete"
	ActionRestore    ActionType = "restore"
)

// ActionLog represents a logged local mutation; the unit of push and undo
type ActionLog struct {
	RowID        int64      `json:"rowid"`
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	ActionType   ActionType `json:"action_type"`
	EntityType   string     `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	PreviousData string     `json:"previous_data"` // JSON snapshot before action
	NewData      string     `json:"new_data"`      // JSON snapshot after action
	Timestamp    time.Time  `json:"timestamp"`
	Undone       bool       `json:"undone"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	ServerSeq    int64      `json:"server_seq,omitempty"`
	Attempts     int        `json:"attempts,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}

// SyncStatusOf maps an action log row to the entity sync state it implies.
func SyncStatusOf(a *ActionLog) SyncStatus {
	switch {
	case a == nil:
		return SyncSynced
	case a.FailedAt != nil:
		return SyncFailed
	case a.SyncedAt != nil:
		return SyncSynced
	default:
		return SyncPending
	}
}

// IsValidTaskStatus checks if a task status is valid
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskDone, TaskCancelled:
		return true
	}
	return false
}

// IsValidPriority checks if a priority is valid
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityP0, PriorityP1, PriorityP2, PriorityP3:
		return true
	}
	return false
}

// IsValidListingStatus checks if a listing status is valid
func IsValidListingStatus(s ListingStatus) bool {
	switch s {
	case ListingDraft, ListingActive, ListingPending, ListingSold, ListingWithdrawn:
		return true
	}
	return false
}

// IsValidPropertyType checks if a property type is valid
func IsValidPropertyType(t PropertyType) bool {
	switch t {
	case PropertyHouse, PropertyCondo, PropertyTownhouse, PropertyLand, PropertyMultiFamily:
		return true
	}
	return false
}

// IsValidActivityKind checks if an activity kind is valid
func IsValidActivityKind(k ActivityKind) bool {
	switch k {
	case ActivityCall, ActivityEmail, ActivityMeeting, ActivityShowing, ActivityStatus, ActivityNote, ActivitySystem:
		return true
	}
	return false
}

// IsValidContactKind checks if a contact kind is valid
func IsValidContactKind(k ContactKind) bool {
	switch k {
	case ContactBuyer, ContactSeller, ContactVendor, ContactOther:
		return true
	}
	return false
}

// IsValidShowingStatus checks if a showing status is valid
func IsValidShowingStatus(s ShowingStatus) bool {
	switch s {
	case ShowingScheduled, ShowingCompleted, ShowingCancelled, ShowingNoShow:
		return true
	}
	return false
}

// NormalizePriority converts alternate priority formats to canonical form
// Accepts: "0", "1", "2", "3" as aliases for "P0", "P1", "P2", "P3"
func NormalizePriority(p string) Priority {
	switch p {
	case "0":
		return PriorityP0
	case "1":
		return PriorityP1
	case "2":
		return PriorityP2
	case "3":
		return PriorityP3
	default:
		return Priority(p)
	}
}

// NormalizeListingStatus converts alternate status names to canonical form
// Accepts: "live" as alias for "active", "closed" for "sold"
func NormalizeListingStatus(s string) ListingStatus {
	switch s {
	case "live":
		return ListingActive
	case "closed":
		return ListingSold
	default:
		return ListingStatus(s)
	}
}

// ValidListingTransitions maps each listing status to the statuses it may
// move to. Status changes outside this map are rejected before anything is
// written.
var ValidListingTransitions = map[ListingStatus][]ListingStatus{
	ListingDraft:     {ListingActive, ListingWithdrawn},
	ListingActive:    {ListingPending, ListingSold, ListingWithdrawn},
	ListingPending:   {ListingActive, ListingSold, ListingWithdrawn},
	ListingSold:      {},
	ListingWithdrawn: {ListingActive},
}

// CanTransitionListing checks whether a listing status transition is allowed.
func CanTransitionListing(from, to ListingStatus) bool {
	for _, s := range ValidListingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
