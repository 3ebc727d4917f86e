package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OTPRequest asks for a one-time code to be sent to a phone number.
type OTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

// OTPVerifyRequest exchanges a received code for a token pair.
type OTPVerifyRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// RefreshRequest rotates a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is the auth response for verify and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       uuid.UUID `json:"user_id"`
}

// ProfileUpdateRequest upserts the caller's profile.
type ProfileUpdateRequest struct {
	Role           string     `json:"role" validate:"required,oneof=talent crew"`
	DisplayName    string     `json:"display_name" validate:"required,min=1,max=80"`
	Bio            string     `json:"bio" validate:"omitempty,max=2000"`
	City           string     `json:"city" validate:"omitempty,max=80"`
	Categories     []string   `json:"categories" validate:"omitempty,max=20,dive,max=60"`
	HeightCM       *int       `json:"height_cm" validate:"omitempty,min=50,max=260"`
	Departments    []string   `json:"departments" validate:"omitempty,max=20,dive,max=60"`
	Kit            string     `json:"kit" validate:"omitempty,max=2000"`
	AvatarUploadID *uuid.UUID `json:"avatar_upload_id" validate:"omitempty"`
	Credits        []Credit   `json:"credits" validate:"omitempty,max=50,dive"`
}

// Credit is one past-work entry on a profile.
type Credit struct {
	Title string `json:"title" validate:"required,max=140"`
	Role  string `json:"role" validate:"omitempty,max=80"`
	Year  int    `json:"year" validate:"omitempty,min=1900,max=2100"`
}

// ProjectRequest creates or updates a project.
type ProjectRequest struct {
	Title          string     `json:"title" validate:"required,min=1,max=140"`
	Synopsis       string     `json:"synopsis" validate:"omitempty,max=4000"`
	ProductionType string     `json:"production_type" validate:"required,oneof=film tv commercial music_video short documentary theatre other"`
	City           string     `json:"city" validate:"omitempty,max=80"`
	ShootStart     *time.Time `json:"shoot_start"`
	ShootEnd       *time.Time `json:"shoot_end"`
}

// RolePostRequest creates or updates a role post under a project.
type RolePostRequest struct {
	Title       string          `json:"title" validate:"required,min=1,max=140"`
	Description string          `json:"description" validate:"omitempty,max=4000"`
	Category    string          `json:"category" validate:"required,max=60"`
	Paid        bool            `json:"paid"`
	PayRate     decimal.Decimal `json:"pay_rate"`
	PayCurrency string          `json:"pay_currency" validate:"omitempty,len=3"`
	Slots       int             `json:"slots" validate:"omitempty,min=1,max=100"`
}

// ApplyRequest submits an application to a role post.
type ApplyRequest struct {
	Note string `json:"note" validate:"omitempty,max=2000"`
}

// ApplicationStatusRequest moves an application through its lifecycle.
type ApplicationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=shortlisted accepted declined"`
}

// ScheduleEntryRequest creates or updates a schedule entry.
type ScheduleEntryRequest struct {
	CallTime  time.Time   `json:"call_time" validate:"required"`
	WrapTime  time.Time   `json:"wrap_time"`
	Location  string      `json:"location" validate:"omitempty,max=200"`
	Note      string      `json:"note" validate:"omitempty,max=2000"`
	Assignees []uuid.UUID `json:"assignees" validate:"omitempty,max=200"`
}

// DeviceRequest registers a push token.
type DeviceRequest struct {
	Token    string `json:"token" validate:"required,max=4096"`
	Platform string `json:"platform" validate:"required,oneof=ios android"`
}

// MarkReadRequest marks notifications as read. Empty IDs means all.
type MarkReadRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"omitempty,max=500"`
}

// Page wraps a list response with its next-page token.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ConversationSummary is the list-conversations row: thread, counterpart,
// latest message and unread count.
type ConversationSummary struct {
	Conversation `json:"conversation"`
	PeerID       uuid.UUID    `json:"peer_id"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnreadCount  int64        `json:"unread_count"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Upload Upload `json:"upload"`
	URL    string `json:"url"`
}
