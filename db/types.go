package db

import (
	"time"

	"github.com/migadu/sera/consts"
)

// User is a rule owner; Timezone is an IANA zone name used only for
// business-hours evaluation.
type User struct {
	ID        int64
	Email     string
	Name      string
	Timezone  string
	CreatedAt time.Time
}

// Rule is a user-defined condition + action configuration for automated
// replies. It is read-mostly during a sweep.
type Rule struct {
	ID                 int64
	UserID             int64
	TemplateID         int64
	Name               string
	IsActive           bool
	SenderFilter       string // case-insensitive substring, empty = no filter
	SubjectFilter      string
	ApplyToAll         bool
	ApplyToExisting    bool
	DelayMinutes       int
	BusinessHoursStart string // "HH:MM", empty = no window
	BusinessHoursEnd   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Template holds the reply subject and body with placeholder tokens.
type Template struct {
	ID           int64
	UserID       int64
	Name         string
	ReplySubject string
	ReplyBody    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is an incoming message as synced from the provider.
type Message struct {
	ID                int64
	UserID            int64
	ProviderMessageID string
	ThreadID          string
	Sender            string
	Subject           string
	Folder            string
	ReceivedAt        *time.Time
	ProcessedForReply bool
	CreatedAt         time.Time
}

// ReplyLog is a ledger row: the durable record of one automation outcome for
// a (rule, provider message) pair.
type ReplyLog struct {
	ID                int64
	UserID            int64
	RuleID            int64
	MessageID         *int64
	ProviderMessageID string
	TemplateID        *int64
	Recipient         string
	IncomingSubject   string
	Status            consts.ReplyLogStatus
	SkipReason        string
	ErrorMessage      string
	SentAt            *time.Time
	CreatedAt         time.Time
}

// ScheduledReply is a deferred dispatch attempt persisted for future
// re-validation and execution.
type ScheduledReply struct {
	ID                int64
	UserID            int64
	RuleID            int64
	MessageID         int64
	ProviderMessageID string
	ScheduledAt       time.Time
	SentAt            *time.Time
	Status            consts.ScheduledReplyStatus
	SkipReason        string
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
