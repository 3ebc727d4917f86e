package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents an authenticated account, keyed by phone number.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Phone     string    `json:"phone" gorm:"uniqueIndex" validate:"required,e164"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile roles.
const (
	ProfileRoleTalent = "talent"
	ProfileRoleCrew   = "crew"
)

// Profile is the public marketplace identity of a user. One per user.
type Profile struct {
	ID             uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID         uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex" validate:"required,uuid"`
	Role           string     `json:"role" validate:"required,oneof=talent crew"`
	DisplayName    string     `json:"display_name" validate:"required,min=1,max=80"`
	Bio            string     `json:"bio" gorm:"type:text" validate:"omitempty,max=2000"`
	City           string     `json:"city" validate:"omitempty,max=80"`
	Categories     string     `json:"categories" gorm:"type:text" validate:"omitempty,json"` // JSON array of category slugs
	HeightCM       *int       `json:"height_cm" validate:"omitempty,min=50,max=260"`         // talent only
	Departments    string     `json:"departments" gorm:"type:text" validate:"omitempty,json"` // crew only, JSON array
	Kit            string     `json:"kit" gorm:"type:text" validate:"omitempty,max=2000"`     // crew only
	AvatarUploadID *uuid.UUID `json:"avatar_upload_id" gorm:"type:uuid" validate:"omitempty,uuid"`
	Credits        string     `json:"credits" gorm:"type:text" validate:"omitempty,json"` // JSON array of {title, role, year}
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Project statuses.
const (
	ProjectStatusDraft  = "draft"
	ProjectStatusOpen   = "open"
	ProjectStatusClosed = "closed"
)

// Project is a production posting that owns role posts and schedules.
type Project struct {
	ID             uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	OwnerID        uuid.UUID  `json:"owner_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Title          string     `json:"title" validate:"required,min=1,max=140"`
	Synopsis       string     `json:"synopsis" gorm:"type:text" validate:"omitempty,max=4000"`
	ProductionType string     `json:"production_type" validate:"required,oneof=film tv commercial music_video short documentary theatre other"`
	City           string     `json:"city" validate:"omitempty,max=80"`
	ShootStart     *time.Time `json:"shoot_start"`
	ShootEnd       *time.Time `json:"shoot_end"`
	Status         string     `json:"status" gorm:"default:draft" validate:"required,oneof=draft open closed"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Role post statuses.
const (
	PostStatusOpen   = "open"
	PostStatusClosed = "closed"
)

// RolePost is a single castable role or crew position within a project.
type RolePost struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	ProjectID   uuid.UUID       `json:"project_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Title       string          `json:"title" validate:"required,min=1,max=140"`
	Description string          `json:"description" gorm:"type:text" validate:"omitempty,max=4000"`
	Category    string          `json:"category" validate:"required,max=60"`
	Paid        bool            `json:"paid"`
	PayRate     decimal.Decimal `json:"pay_rate" gorm:"type:numeric(12,2)"`
	PayCurrency string          `json:"pay_currency" validate:"omitempty,len=3"`
	Slots       int             `json:"slots" gorm:"default:1" validate:"min=1,max=100"`
	Status      string          `json:"status" gorm:"default:open" validate:"required,oneof=open closed"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Application statuses.
const (
	ApplicationStatusSubmitted   = "submitted"
	ApplicationStatusShortlisted = "shortlisted"
	ApplicationStatusAccepted    = "accepted"
	ApplicationStatusDeclined    = "declined"
	ApplicationStatusWithdrawn   = "withdrawn"
)

// Application links an applicant to a role post. One per (post, applicant).
type Application struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	PostID      uuid.UUID `json:"post_id" gorm:"type:uuid;index;uniqueIndex:idx_post_applicant" validate:"required,uuid"`
	ApplicantID uuid.UUID `json:"applicant_id" gorm:"type:uuid;index;uniqueIndex:idx_post_applicant" validate:"required,uuid"`
	Note        string    `json:"note" gorm:"type:text" validate:"omitempty,max=2000"`
	Status      string    `json:"status" gorm:"default:submitted" validate:"required,oneof=submitted shortlisted accepted declined withdrawn"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScheduleEntry is one shoot-day line item for a project.
type ScheduleEntry struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	ProjectID    uuid.UUID `json:"project_id" gorm:"type:uuid;index" validate:"required,uuid"`
	CallTime     time.Time `json:"call_time" validate:"required"`
	WrapTime     time.Time `json:"wrap_time"`
	Location     string    `json:"location" validate:"omitempty,max=200"`
	Note         string    `json:"note" gorm:"type:text" validate:"omitempty,max=2000"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ScheduleAssignee attaches an accepted applicant to a schedule entry.
type ScheduleAssignee struct {
	ID      uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	EntryID uuid.UUID `json:"entry_id" gorm:"type:uuid;index;uniqueIndex:idx_entry_user" validate:"required,uuid"`
	UserID  uuid.UUID `json:"user_id" gorm:"type:uuid;index;uniqueIndex:idx_entry_user" validate:"required,uuid"`
}

// Conversation is a two-party chat thread. The pair is stored ordered
// (UserA < UserB by string compare) so the unique index deduplicates it.
type Conversation struct {
	ID            uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserA         uuid.UUID `json:"user_a" gorm:"type:uuid;index;uniqueIndex:idx_conv_pair" validate:"required,uuid"`
	UserB         uuid.UUID `json:"user_b" gorm:"type:uuid;index;uniqueIndex:idx_conv_pair" validate:"required,uuid"`
	LastMessageAt time.Time `json:"last_message_at" gorm:"index"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is a chat message. ClientMsgID is the client-generated idempotency
// key; the unique index on (conversation_id, client_msg_id) makes redelivery
// of the same send a no-op.
type Message struct {
	ID             uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	ConversationID uuid.UUID  `json:"conversation_id" gorm:"type:uuid;index;uniqueIndex:idx_conv_client_msg" validate:"required,uuid"`
	SenderID       uuid.UUID  `json:"sender_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Body           string     `json:"body" gorm:"type:text" validate:"required,max=4000"`
	ClientMsgID    string     `json:"client_msg_id" gorm:"uniqueIndex:idx_conv_client_msg" validate:"required,max=64"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
}

// Notification types.
const (
	NotificationTypeApplication       = "application"
	NotificationTypeApplicationStatus = "application_status"
	NotificationTypeMessage           = "message"
	NotificationTypeScheduleReminder  = "schedule_reminder"
)

// Notification is a persisted in-app notification.
type Notification struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Type      string    `json:"type" validate:"required,oneof=application application_status message schedule_reminder"`
	Payload   string    `json:"payload" gorm:"type:text" validate:"omitempty,json"`
	Read      bool      `json:"read" gorm:"index"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// Device is a registered push target for a user.
type Device struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Token     string    `json:"token" gorm:"uniqueIndex" validate:"required,max=4096"`
	Platform  string    `json:"platform" validate:"required,oneof=ios android"`
	CreatedAt time.Time `json:"created_at"`
}

// Upload is the metadata row for an object stored in the media bucket.
type Upload struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Key         string    `json:"-" validate:"required"`
	ThumbKey    string    `json:"-"`
	DisplayKey  string    `json:"-"`
	ContentType string    `json:"content_type" validate:"required,max=120"`
	Size        int64     `json:"size" validate:"min=0"`
	CreatedAt   time.Time `json:"created_at"`
}
