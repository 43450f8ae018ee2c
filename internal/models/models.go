package models

import "time"

type GenerationStatus string

const (
	GenerationInProgress GenerationStatus = "IN_PROGRESS"
	GenerationCompleted  GenerationStatus = "COMPLETED"
	GenerationFailed     GenerationStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// User is keyed by the Telegram user id.
type User struct {
	ID            int64     `json:"user_id"`
	Username      string    `json:"username"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Credits       int       `json:"credits"`
	SpentStars    int       `json:"spent_stars"`
	LastResultURL string    `json:"last_result_url,omitempty"`
	ReferredBy    string    `json:"referred_by,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Profile struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

type Generation struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Prompt      string           `json:"prompt"`
	AspectRatio string           `json:"aspect_ratio"`
	TaskID      string           `json:"task_id"`
	ResultURL   string           `json:"result_url,omitempty"`
	Status      GenerationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type PromoCode struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	MaxUses   int       `json:"max_uses"`
	Uses      int       `json:"uses"`
	CreatedAt time.Time `json:"created_at"`
}

type Purchase struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	PackID       *int64    `json:"pack_id,omitempty"`
	Payload      string    `json:"payload"`
	Stars        int       `json:"stars"`
	CreditsAdded int       `json:"credits_added"`
	ChargeID     string    `json:"telegram_charge_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Pack is a credit bundle sold for Telegram Stars.
type Pack struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	Credits     int       `json:"credits"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Prompt struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	SourceMessageID int       `json:"source_message_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
