package email

import (
	"errors"
	"time"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/thread"
	"github.com/brandon/mailcore/pkg/types"
)

// ErrBadCharset is returned by Search and Sort when the server rejects the
// requested charset.
var ErrBadCharset = errors.New("charset not supported by server")

// Timeouts are the connection-level limits of a session.
type Timeouts struct {
	Connect time.Duration
	IO      time.Duration
}

// orDefault fills zero fields from def.
func (t Timeouts) orDefault(def Timeouts) Timeouts {
	if t.Connect == 0 {
		t.Connect = def.Connect
	}
	if t.IO == 0 {
		t.IO = def.IO
	}
	return t
}

// RawFolder is one LIST or LSUB entry. Name is the protocol-encoded full name.
type RawFolder struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// MailboxState is the result of SELECT or STATUS.
type MailboxState struct {
	Name           string
	ReadOnly       bool
	Messages       uint32
	Unseen         uint32
	UIDNext        uint32
	UIDValidity    uint32
	PermanentFlags []string
}

// FetchItems selects what Fetch returns besides sequence number and UID.
type FetchItems struct {
	Flags        bool
	Size         bool
	InternalDate bool
	Headers      bool
	Structure    bool
}

var (
	summaryItems   = FetchItems{Flags: true, Size: true, InternalDate: true, Headers: true}
	newMailItems   = FetchItems{Flags: true, Headers: true}
	structureItems = FetchItems{Structure: true}
)

// FetchedMessage is one FETCH response.
type FetchedMessage struct {
	SeqNum       uint32
	UID          uint32
	Size         uint32
	InternalDate time.Time
	Flags        []string
	From         []types.Address
	Subject      string
	ContentType  string
	Structure    *types.BodyPart
}

// HasFlag reports whether the message carries flag.
func (m *FetchedMessage) HasFlag(flag string) bool {
	s := types.MessageSummary{Flags: m.Flags}
	return s.HasFlag(flag)
}

// FlagOp is the STORE operation.
type FlagOp int

const (
	FlagAdd FlagOp = iota
	FlagRemove
	FlagReplace
)

// Client is the protocol session the orchestration layer drives. All folder
// names are raw (protocol-encoded). A Client is not safe for concurrent use;
// the Pool serializes access per account.
type Client interface {
	Connect(endpoint types.Endpoint, timeouts Timeouts) error
	IsConnected() bool
	IsLoggedIn() bool
	Login(login string, secret credential.Secret, mode types.AuthMode) error
	Logout() error
	Close() error
	IsSupported(capability string) bool

	Delimiter() (string, error)
	ListFolders() ([]RawFolder, error)
	ListSubscribed() ([]RawFolder, error)
	CreateFolder(name string) error
	DeleteFolder(name string) error
	RenameFolder(from, to string) error
	Subscribe(name string, subscribe bool) error
	Select(name string, readOnly bool) (*MailboxState, error)
	Status(name string) (*MailboxState, error)

	Fetch(ids []uint32, byUID bool, items FetchItems) ([]*FetchedMessage, error)
	FetchUIDRange(from uint32, items FetchItems) ([]*FetchedMessage, error)
	Search(criteria, charset string) ([]uint32, error)
	Sort(criteria, charset string) ([]uint32, error)
	Thread() ([]*thread.Node, error)

	Store(uids []uint32, op FlagOp, flags []string) error
	StoreAll(op FlagOp, flags []string) error
	Copy(uids []uint32, dest string) error
	Move(uids []uint32, dest string) error
	Expunge(uids []uint32) error
	Append(folder string, flags []string, date time.Time, message []byte) error
}

// Capabilities the orchestration layer checks.
const (
	CapSort             = "SORT"
	CapThreadReferences = "THREAD=REFERENCES"
	CapThreadSubject    = "THREAD=ORDEREDSUBJECT"
	CapMove             = "MOVE"
	CapUIDPlus          = "UIDPLUS"
	CapGmail            = "X-GM-EXT-1"
	CapID               = "ID"
	CapOAuthBearer      = "AUTH=OAUTHBEARER"
)
