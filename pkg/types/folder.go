package types

import (
	"fmt"
	"iter"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// FolderType is the semantic role of a mailbox.
type FolderType int

const (
	FolderTypeCustom FolderType = iota
	FolderTypeInbox
	FolderTypeDrafts
	FolderTypeSent
	FolderTypeSpam
	FolderTypeTrash
)

// InboxName is the reserved IMAP name of the inbox.
const InboxName = "INBOX"

// SystemFolderTypes lists the canonical types in display order.
var SystemFolderTypes = []FolderType{
	FolderTypeInbox,
	FolderTypeDrafts,
	FolderTypeSent,
	FolderTypeSpam,
	FolderTypeTrash,
}

func (t FolderType) String() string {
	switch t {
	case FolderTypeInbox:
		return "inbox"
	case FolderTypeDrafts:
		return "drafts"
	case FolderTypeSent:
		return "sent"
	case FolderTypeSpam:
		return "spam"
	case FolderTypeTrash:
		return "trash"
	default:
		return "custom"
	}
}

// IsSystem reports whether t is one of the canonical types.
func (t FolderType) IsSystem() bool {
	return t != FolderTypeCustom
}

// SortRank is the position of t in the default folder ordering. Custom
// folders share the last rank.
func (t FolderType) SortRank() int {
	for i, st := range SystemFolderTypes {
		if st == t {
			return i
		}
	}
	return len(SystemFolderTypes)
}

// ParseFolderType converts the persisted string form back to a FolderType.
func ParseFolderType(s string) (FolderType, error) {
	switch strings.ToLower(s) {
	case "inbox":
		return FolderTypeInbox, nil
	case "drafts":
		return FolderTypeDrafts, nil
	case "sent":
		return FolderTypeSent, nil
	case "spam":
		return FolderTypeSpam, nil
	case "trash":
		return FolderTypeTrash, nil
	case "custom":
		return FolderTypeCustom, nil
	}
	return FolderTypeCustom, fmt.Errorf("unknown folder type: %q", s)
}

// FolderStatus is the live counter triple of a folder.
type FolderStatus struct {
	MessageCount uint32 `json:"message_count"`
	UnseenCount  uint32 `json:"unseen_count"`
	UIDNext      uint32 `json:"uid_next"`
	Hash         string `json:"hash"`
}

// NewFolderStatus builds a status with its change-detection hash.
func NewFolderStatus(fullNameRaw string, count, unseen, uidNext uint32) *FolderStatus {
	return &FolderStatus{
		MessageCount: count,
		UnseenCount:  unseen,
		UIDNext:      uidNext,
		Hash:         FolderHash(fullNameRaw, count, unseen, uidNext),
	}
}

// FolderHash is a deterministic digest of a folder's name and counters.
func FolderHash(fullNameRaw string, count, unseen, uidNext uint32) string {
	sum := xxhash.Sum64String(fmt.Sprintf("%s-%d-%d-%d", fullNameRaw, count, unseen, uidNext))
	return fmt.Sprintf("%016x", sum)
}

// Folder is one node of an account's mailbox tree.
type Folder struct {
	FullNameRaw string            `json:"full_name_raw"`
	FullName    string            `json:"full_name"`
	Name        string            `json:"name"`
	Delimiter   string            `json:"delimiter"`
	Type        FolderType        `json:"type"`
	Subscribed  bool              `json:"subscribed"`
	Selectable  bool              `json:"selectable"`
	Attributes  []string          `json:"-"`
	Status      *FolderStatus     `json:"status,omitempty"`
	SubFolders  *FolderCollection `json:"sub_folders,omitempty"`
}

// IsInbox reports whether the folder is the literal INBOX.
func (f *Folder) IsInbox() bool {
	return strings.EqualFold(f.FullNameRaw, InboxName)
}

// Visible reports whether the folder should be shown to the user.
func (f *Folder) Visible() bool {
	return f.Subscribed || f.IsInbox()
}

// HasAttribute reports whether the LIST response carried attr.
func (f *Folder) HasAttribute(attr string) bool {
	for _, a := range f.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

// SpecialUse returns the role advertised by the provider through
// special-use or XLIST attributes, or FolderTypeCustom when none.
func (f *Folder) SpecialUse() FolderType {
	for _, a := range f.Attributes {
		switch strings.ToLower(a) {
		case `\inbox`:
			return FolderTypeInbox
		case `\drafts`:
			return FolderTypeDrafts
		case `\sent`:
			return FolderTypeSent
		case `\junk`, `\spam`:
			return FolderTypeSpam
		case `\trash`:
			return FolderTypeTrash
		}
	}
	return FolderTypeCustom
}

// FolderCollection is one level of the folder tree.
type FolderCollection struct {
	Namespace string    `json:"namespace,omitempty"`
	Delimiter string    `json:"delimiter,omitempty"`
	Folders   []*Folder `json:"folders"`
}

// Len returns the number of folders on this level.
func (c *FolderCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Folders)
}

// All yields every folder depth-first, parents before children.
func (c *FolderCollection) All() iter.Seq[*Folder] {
	return func(yield func(*Folder) bool) {
		c.walk(yield)
	}
}

func (c *FolderCollection) walk(yield func(*Folder) bool) bool {
	if c == nil {
		return true
	}
	for _, f := range c.Folders {
		if !yield(f) {
			return false
		}
		if !f.SubFolders.walk(yield) {
			return false
		}
	}
	return true
}

// Roots yields only the top-level folders.
func (c *FolderCollection) Roots() iter.Seq[*Folder] {
	return func(yield func(*Folder) bool) {
		if c == nil {
			return
		}
		for _, f := range c.Folders {
			if !yield(f) {
				return
			}
		}
	}
}

// Find returns the folder with the given raw full name.
func (c *FolderCollection) Find(fullNameRaw string) *Folder {
	for f := range c.All() {
		if f.FullNameRaw == fullNameRaw {
			return f
		}
	}
	return nil
}

// FindByType returns the first folder of type t.
func (c *FolderCollection) FindByType(t FolderType) *Folder {
	for f := range c.All() {
		if f.Type == t {
			return f
		}
	}
	return nil
}

// FullNames lists raw names in traversal order.
func (c *FolderCollection) FullNames() []string {
	var names []string
	for f := range c.All() {
		names = append(names, f.FullNameRaw)
	}
	return names
}
