package consts

// ReplyLogStatus is the terminal-state machine of a reply_logs row.
// A row is created as Processing (the claim) and only ever moves forward:
// Processing -> Sent or Processing -> Failed. Skipped and NotMatched are
// recorded directly since they never dispatch.
type ReplyLogStatus string

const (
	StatusProcessing ReplyLogStatus = "Processing"
	StatusSent       ReplyLogStatus = "Sent"
	StatusFailed     ReplyLogStatus = "Failed"
	StatusSkipped    ReplyLogStatus = "Skipped"
	StatusNotMatched ReplyLogStatus = "NotMatched"
)

// ScheduledReplyStatus is the lifecycle of a scheduled_replies row.
type ScheduledReplyStatus string

const (
	ScheduledStatusScheduled ScheduledReplyStatus = "Scheduled"
	ScheduledStatusSent      ScheduledReplyStatus = "Sent"
	ScheduledStatusFailed    ScheduledReplyStatus = "Failed"
	ScheduledStatusSkipped   ScheduledReplyStatus = "Skipped"
	ScheduledStatusCancelled ScheduledReplyStatus = "Cancelled"
)

// Message folders as synced from the provider.
const (
	FolderInbox = "inbox"
	FolderSent  = "sent"
)
