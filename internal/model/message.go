package model

import "time"

type Status string

const (
	Scheduled Status = "scheduled"
	Sending   Status = "sending"
	Sent      Status = "sent"
	Failed    Status = "failed"
)

// Attachment references a media blob by its storage path; the blob itself
// is never embedded in the message row.
type Attachment struct {
	StoragePath string
	Filename    string
	ContentType string
}

type Message struct {
	ID             string
	OwnerID        string
	RecipientName  string
	RecipientEmail *string
	Body           *string
	Attachments    []Attachment
	ScheduledAt    time.Time
	Status         Status
	SentAt         *time.Time
	LastError      *string
	ClaimedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SelfAddressed reports whether the message goes back to its author,
// i.e. no third-party recipient address was given at compose time.
func (m Message) SelfAddressed() bool {
	return m.RecipientEmail == nil || *m.RecipientEmail == ""
}
