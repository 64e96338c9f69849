package types

import (
	"iter"
	"strings"
	"time"
)

// Address is a parsed mailbox address.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// MessageSummary is the list-view projection of one message.
type MessageSummary struct {
	Folder       string    `json:"folder"`
	UID          uint32    `json:"uid"`
	Index        uint32    `json:"index"`
	Size         uint32    `json:"size"`
	InternalDate time.Time `json:"internal_date"`
	Flags        []string  `json:"flags,omitempty"`
	From         []Address `json:"from,omitempty"`
	Subject      string    `json:"subject"`
	ContentType  string    `json:"content_type,omitempty"`
	Threads      []uint32  `json:"threads,omitempty"`
}

// HasFlag reports whether the message carries flag (case-insensitive).
func (m *MessageSummary) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// NewMessage is a message that arrived since the caller's last sync.
type NewMessage struct {
	Folder  string    `json:"folder"`
	UID     uint32    `json:"uid"`
	Subject string    `json:"subject"`
	From    []Address `json:"from,omitempty"`
}

// MessageListRequest describes one page of a folder listing.
type MessageListRequest struct {
	Folder       string
	Offset       int
	Limit        int
	Search       string
	Filters      []string
	UseThreads   bool
	InboxUIDNext uint32
	// TimezoneOffsetMinutes interprets date: values; nil uses the
	// installation default.
	TimezoneOffsetMinutes *int
}

// MessageList is one assembled page.
type MessageList struct {
	Folder             string            `json:"folder"`
	Offset             int               `json:"offset"`
	Limit              int               `json:"limit"`
	Search             string            `json:"search,omitempty"`
	Filters            []string          `json:"filters,omitempty"`
	MessageCount       uint32            `json:"message_count"`
	MessageUnseenCount uint32            `json:"message_unseen_count"`
	MessageResultCount int               `json:"message_result_count"`
	UIDNext            uint32            `json:"uid_next"`
	FolderHash         string            `json:"folder_hash"`
	UIDs               []uint32          `json:"uids"`
	Messages           []*MessageSummary `json:"messages"`
	New                []*NewMessage     `json:"new,omitempty"`
}

// BodyPart is one node of a message's MIME structure.
type BodyPart struct {
	MIMEType    string      `json:"mime_type"`
	Disposition string      `json:"disposition,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	ContentID   string      `json:"content_id,omitempty"`
	Parts       []*BodyPart `json:"parts,omitempty"`
}

// IsAttachment reports whether the part is a file the user would see as an
// attachment: a leaf that is neither inline nor an embedded image.
func (p *BodyPart) IsAttachment() bool {
	if p == nil || len(p.Parts) > 0 {
		return false
	}
	if strings.EqualFold(p.Disposition, "inline") {
		return false
	}
	if p.ContentID != "" && strings.HasPrefix(strings.ToLower(p.MIMEType), "image/") {
		return false
	}
	return p.Filename != "" || strings.EqualFold(p.Disposition, "attachment")
}

// Attachments yields attachment parts depth-first.
func (p *BodyPart) Attachments() iter.Seq[*BodyPart] {
	return func(yield func(*BodyPart) bool) {
		p.walkAttachments(yield)
	}
}

func (p *BodyPart) walkAttachments(yield func(*BodyPart) bool) bool {
	if p == nil {
		return true
	}
	if p.IsAttachment() {
		return yield(p)
	}
	for _, child := range p.Parts {
		if !child.walkAttachments(yield) {
			return false
		}
	}
	return true
}
