package models

import "time"

// Record is the normalized form of one archived email. MessageID is derived
// from the message's own Message-ID header (or a content hash when the
// header is absent), so the same physical email maps to the same record
// across runs regardless of its mailbox-local UID.
type Record struct {
	MessageID  string    `db:"message_id"`  // stable unique key
	Sender     string    `db:"sender"`      // sender address
	Subject    string    `db:"subject"`     // decoded subject
	ReceivedAt time.Time `db:"received_at"` // from the Date header, zero if missing
	Body       string    `db:"body"`        // plain text body
	ArchivedAt time.Time `db:"archived_at"` // set by the store on upsert
}
