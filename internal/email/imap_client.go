package email

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	id "github.com/emersion/go-imap-id"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/commands"
	"github.com/emersion/go-imap/responses"
	"github.com/emersion/go-imap/utf7"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-sasl"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/thread"
	"github.com/brandon/mailcore/pkg/types"
)

// ClientName is sent in the ID command.
const ClientName = "mailcore"

// ClientVersion is sent in the ID command.
var ClientVersion = "dev"

var headerSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"FROM", "SUBJECT", "CONTENT-TYPE"},
	},
	Peek: true,
}

// IMAPClient adapts a go-imap connection to Client. Names crossing the
// Client boundary are raw modified UTF-7; go-imap itself speaks UTF-8.
type IMAPClient struct {
	client *client.Client
	logger *logrus.Logger
}

// NewIMAPClient creates a new IMAP client (does not connect immediately)
func NewIMAPClient(logger *logrus.Logger) *IMAPClient {
	return &IMAPClient{logger: logger}
}

// Connect dials the endpoint, upgrading with STARTTLS when configured
func (c *IMAPClient) Connect(ep types.Endpoint, timeouts Timeouts) error {
	if c.IsConnected() {
		return nil
	}

	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	dialer := &net.Dialer{Timeout: timeouts.Connect}
	tlsConfig := &tls.Config{
		ServerName: ep.Host,
		MinVersion: tls.VersionTLS12,
	}

	var (
		cl  *client.Client
		err error
	)
	if ep.Security == types.SecuritySSL {
		cl, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		cl, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	cl.Timeout = timeouts.IO

	if ep.Security == types.SecurityStartTLS {
		if err := cl.StartTLS(tlsConfig); err != nil {
			cl.Terminate() //nolint:errcheck
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	c.client = cl
	c.sendID()

	c.logger.WithField("addr", addr).Debug("Connected to IMAP server")
	return nil
}

// sendID identifies the client when the server asks for it. Failures are
// not fatal.
func (c *IMAPClient) sendID() {
	if ok, _ := c.client.Support(CapID); !ok {
		return
	}
	_, err := id.NewClient(c.client).ID(id.ID{
		id.FieldName:    ClientName,
		id.FieldVersion: ClientVersion,
	})
	if err != nil {
		c.logger.WithError(err).Debug("ID command failed")
	}
}

// IsConnected reports whether the connection is still open
func (c *IMAPClient) IsConnected() bool {
	if c.client == nil {
		return false
	}
	select {
	case <-c.client.LoggedOut():
		return false
	default:
	}
	return c.client.State()&imap.ConnectedState != 0
}

// IsLoggedIn reports whether the session is authenticated
func (c *IMAPClient) IsLoggedIn() bool {
	if !c.IsConnected() {
		return false
	}
	return c.client.State()&(imap.AuthenticatedState|imap.SelectedState) != 0
}

// Login authenticates with a password or, in oauth2 mode, OAUTHBEARER
func (c *IMAPClient) Login(login string, secret credential.Secret, mode types.AuthMode) error {
	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	if mode == types.AuthModeOAuth2 {
		if secret.OAuthToken == "" {
			return fmt.Errorf("no oauth token for %s", login)
		}
		if ok, _ := c.client.Support(CapOAuthBearer); !ok {
			return fmt.Errorf("server does not support OAUTHBEARER")
		}
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: login,
			Token:    secret.OAuthToken,
		})
		if err := c.client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
		return nil
	}

	if err := c.client.Login(login, secret.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}
	return nil
}

// Logout ends the session politely
func (c *IMAPClient) Logout() error {
	if c.client == nil {
		return nil
	}
	return c.client.Logout()
}

// Close logs out if possible and drops the connection
func (c *IMAPClient) Close() error {
	if c.client == nil {
		return nil
	}
	var err error
	if c.IsConnected() {
		err = c.client.Logout()
	}
	if err != nil {
		c.client.Terminate() //nolint:errcheck
	}
	c.client = nil
	return err
}

// IsSupported reports whether the server advertises capability
func (c *IMAPClient) IsSupported(capability string) bool {
	if c.client == nil {
		return false
	}
	ok, err := c.client.Support(capability)
	return err == nil && ok
}

// Delimiter returns the hierarchy delimiter of the personal namespace
func (c *IMAPClient) Delimiter() (string, error) {
	folders, err := c.list(false, "")
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.Delimiter != "" {
			return f.Delimiter, nil
		}
	}
	return "", nil
}

// ListFolders lists all mailboxes
func (c *IMAPClient) ListFolders() ([]RawFolder, error) {
	return c.list(false, "*")
}

// ListSubscribed lists subscribed mailboxes
func (c *IMAPClient) ListSubscribed() ([]RawFolder, error) {
	return c.list(true, "*")
}

func (c *IMAPClient) list(subscribed bool, pattern string) ([]RawFolder, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		if subscribed {
			done <- c.client.Lsub("", pattern, mailboxes)
		} else {
			done <- c.client.List("", pattern, mailboxes)
		}
	}()

	var folders []RawFolder
	for m := range mailboxes {
		if pattern == "" {
			folders = append(folders, RawFolder{Delimiter: m.Delimiter})
			continue
		}
		folders = append(folders, RawFolder{
			Name:       encodeName(m.Name),
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// CreateFolder creates a mailbox
func (c *IMAPClient) CreateFolder(name string) error {
	if err := c.client.Create(decodeName(name)); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", name, err)
	}
	return nil
}

// DeleteFolder deletes a mailbox
func (c *IMAPClient) DeleteFolder(name string) error {
	if err := c.client.Delete(decodeName(name)); err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", name, err)
	}
	return nil
}

// RenameFolder renames a mailbox
func (c *IMAPClient) RenameFolder(from, to string) error {
	if err := c.client.Rename(decodeName(from), decodeName(to)); err != nil {
		return fmt.Errorf("failed to rename folder %s: %w", from, err)
	}
	return nil
}

// Subscribe subscribes to or unsubscribes from a mailbox
func (c *IMAPClient) Subscribe(name string, subscribe bool) error {
	var err error
	if subscribe {
		err = c.client.Subscribe(decodeName(name))
	} else {
		err = c.client.Unsubscribe(decodeName(name))
	}
	if err != nil {
		return fmt.Errorf("failed to change subscription of %s: %w", name, err)
	}
	return nil
}

// Select opens a mailbox
func (c *IMAPClient) Select(name string, readOnly bool) (*MailboxState, error) {
	mbox, err := c.client.Select(decodeName(name), readOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", name, err)
	}
	return toMailboxState(name, mbox), nil
}

// Status reads the counters of a mailbox without selecting it
func (c *IMAPClient) Status(name string) (*MailboxState, error) {
	items := []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen, imap.StatusUidNext, imap.StatusUidValidity}
	mbox, err := c.client.Status(decodeName(name), items)
	if err != nil {
		return nil, fmt.Errorf("failed to get status of %s: %w", name, err)
	}
	return toMailboxState(name, mbox), nil
}

func toMailboxState(name string, mbox *imap.MailboxStatus) *MailboxState {
	return &MailboxState{
		Name:           name,
		ReadOnly:       mbox.ReadOnly,
		Messages:       mbox.Messages,
		Unseen:         mbox.Unseen,
		UIDNext:        mbox.UidNext,
		UIDValidity:    mbox.UidValidity,
		PermanentFlags: mbox.PermanentFlags,
	}
}

// Fetch fetches messages by sequence number or UID
func (c *IMAPClient) Fetch(ids []uint32, byUID bool, items FetchItems) ([]*FetchedMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	return c.fetch(seqset, byUID, items)
}

// FetchUIDRange fetches UIDs from:*. Servers return the last message for
// an empty range; callers filter.
func (c *IMAPClient) FetchUIDRange(from uint32, items FetchItems) ([]*FetchedMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, 0)
	return c.fetch(seqset, true, items)
}

func (c *IMAPClient) fetch(seqset *imap.SeqSet, byUID bool, items FetchItems) ([]*FetchedMessage, error) {
	fetchItems := []imap.FetchItem{imap.FetchUid}
	if items.Flags {
		fetchItems = append(fetchItems, imap.FetchFlags)
	}
	if items.Size {
		fetchItems = append(fetchItems, imap.FetchRFC822Size)
	}
	if items.InternalDate {
		fetchItems = append(fetchItems, imap.FetchInternalDate)
	}
	if items.Structure {
		fetchItems = append(fetchItems, imap.FetchBodyStructure)
	}
	if items.Headers {
		fetchItems = append(fetchItems, headerSection.FetchItem())
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		if byUID {
			done <- c.client.UidFetch(seqset, fetchItems, messages)
		} else {
			done <- c.client.Fetch(seqset, fetchItems, messages)
		}
	}()

	var out []*FetchedMessage
	for msg := range messages {
		out = append(out, c.parseMessage(msg, items))
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

// parseMessage converts a FETCH response into a FetchedMessage
func (c *IMAPClient) parseMessage(msg *imap.Message, items FetchItems) *FetchedMessage {
	fm := &FetchedMessage{
		SeqNum:       msg.SeqNum,
		UID:          msg.Uid,
		Size:         msg.Size,
		InternalDate: msg.InternalDate,
		Flags:        msg.Flags,
		Structure:    convertStructure(msg.BodyStructure),
	}
	if !items.Headers {
		return fm
	}

	literal := msg.GetBody(headerSection)
	if literal == nil {
		c.logger.WithField("uid", msg.Uid).Debug("No header section in fetch response")
		return fm
	}
	h, err := textproto.ReadHeader(bufio.NewReader(literal))
	if err != nil {
		c.logger.WithError(err).WithField("uid", msg.Uid).Debug("Failed to parse header")
		return fm
	}
	header := mail.Header{Header: message.Header{Header: h}}

	if subject, err := header.Subject(); err == nil {
		fm.Subject = subject
	} else {
		fm.Subject = header.Get("Subject")
	}
	if addrs, err := header.AddressList("From"); err == nil {
		for _, a := range addrs {
			fm.From = append(fm.From, types.Address{Name: a.Name, Email: a.Address})
		}
	}
	if ct, _, err := header.ContentType(); err == nil {
		fm.ContentType = ct
	}
	return fm
}

func convertStructure(bs *imap.BodyStructure) *types.BodyPart {
	if bs == nil {
		return nil
	}
	part := &types.BodyPart{
		MIMEType:    strings.ToLower(bs.MIMEType + "/" + bs.MIMESubType),
		Disposition: strings.ToLower(bs.Disposition),
		ContentID:   bs.Id,
	}
	if name, err := bs.Filename(); err == nil {
		part.Filename = name
	}
	for _, child := range bs.Parts {
		part.Parts = append(part.Parts, convertStructure(child))
	}
	return part
}

// Search runs UID SEARCH with pre-rendered criteria
func (c *IMAPClient) Search(criteria, charset string) ([]uint32, error) {
	var args []interface{}
	if charset != "" {
		args = append(args, imap.RawString("CHARSET"), imap.RawString(charset))
	}
	args = append(args, imap.RawString(criteria))
	return c.execIDList("SEARCH", args)
}

// Sort returns UIDs in reverse arrival order
func (c *IMAPClient) Sort(criteria, charset string) ([]uint32, error) {
	if criteria == "" || criteria == "ALL" {
		sortCriteria := []sortthread.SortCriterion{{Field: sortthread.SortArrival, Reverse: true}}
		uids, err := sortthread.NewSortClient(c.client).UidSort(sortCriteria, imap.NewSearchCriteria())
		if err != nil {
			return nil, fmt.Errorf("failed to sort: %w", err)
		}
		return uids, nil
	}
	if charset == "" {
		charset = "US-ASCII"
	}
	args := []interface{}{
		imap.RawString("(REVERSE ARRIVAL)"),
		imap.RawString(charset),
		imap.RawString(criteria),
	}
	return c.execIDList("SORT", args)
}

// Thread runs UID THREAD over the whole mailbox
func (c *IMAPClient) Thread() ([]*thread.Node, error) {
	algorithm := sortthread.OrderedSubject
	if c.IsSupported(CapThreadReferences) {
		algorithm = sortthread.References
	}
	threads, err := sortthread.NewThreadClient(c.client).UidThread(algorithm, imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("failed to thread: %w", err)
	}
	return convertThreads(threads), nil
}

func convertThreads(threads []*sortthread.Thread) []*thread.Node {
	nodes := make([]*thread.Node, 0, len(threads))
	for _, t := range threads {
		if t == nil {
			continue
		}
		nodes = append(nodes, &thread.Node{UID: t.Id, Children: convertThreads(t.Children)})
	}
	return nodes
}

// execIDList runs a UID command whose untagged reply is a list of numbers
func (c *IMAPClient) execIDList(name string, args []interface{}) ([]uint32, error) {
	cmd := &commands.Uid{Cmd: &imap.Command{Name: name, Arguments: args}}
	handler := &idListHandler{name: name}

	status, err := c.client.Execute(cmd, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", name, err)
	}
	if status.Code == imap.CodeBadCharset {
		return nil, ErrBadCharset
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("%s rejected: %w", name, err)
	}
	return handler.ids, nil
}

type idListHandler struct {
	name string
	ids  []uint32
}

func (h *idListHandler) Handle(resp imap.Resp) error {
	name, fields, ok := imap.ParseNamedResp(resp)
	if !ok || name != h.name {
		return responses.ErrUnhandled
	}
	for _, f := range fields {
		n, err := imap.ParseNumber(f)
		if err != nil {
			return err
		}
		h.ids = append(h.ids, n)
	}
	return nil
}

func storeItem(op FlagOp) imap.StoreItem {
	switch op {
	case FlagRemove:
		return imap.FormatFlagsOp(imap.RemoveFlags, true)
	case FlagReplace:
		return imap.FormatFlagsOp(imap.SetFlags, true)
	default:
		return imap.FormatFlagsOp(imap.AddFlags, true)
	}
}

func flagValues(flags []string) []interface{} {
	values := make([]interface{}, len(flags))
	for i, f := range flags {
		values[i] = f
	}
	return values
}

// Store changes flags of the given UIDs
func (c *IMAPClient) Store(uids []uint32, op FlagOp, flags []string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	if err := c.client.UidStore(seqset, storeItem(op), flagValues(flags), nil); err != nil {
		return fmt.Errorf("failed to store flags: %w", err)
	}
	return nil
}

// StoreAll changes flags of every message in the selected mailbox
func (c *IMAPClient) StoreAll(op FlagOp, flags []string) error {
	seqset := new(imap.SeqSet)
	seqset.AddRange(1, 0)
	if err := c.client.Store(seqset, storeItem(op), flagValues(flags), nil); err != nil {
		return fmt.Errorf("failed to store flags: %w", err)
	}
	return nil
}

// Copy copies UIDs to dest
func (c *IMAPClient) Copy(uids []uint32, dest string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	if err := c.client.UidCopy(seqset, decodeName(dest)); err != nil {
		return fmt.Errorf("failed to copy messages: %w", err)
	}
	return nil
}

// Move moves UIDs to dest. Callers check CapMove first.
func (c *IMAPClient) Move(uids []uint32, dest string) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	if err := c.client.UidMove(seqset, decodeName(dest)); err != nil {
		return fmt.Errorf("failed to move messages: %w", err)
	}
	return nil
}

// Expunge removes \Deleted messages, limited to uids when UIDPLUS allows
func (c *IMAPClient) Expunge(uids []uint32) error {
	if len(uids) > 0 && c.IsSupported(CapUIDPlus) {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)
		cmd := &commands.Uid{Cmd: &imap.Command{
			Name:      "EXPUNGE",
			Arguments: []interface{}{imap.RawString(seqset.String())},
		}}
		status, err := c.client.Execute(cmd, nil)
		if err != nil {
			return fmt.Errorf("failed to expunge: %w", err)
		}
		return status.Err()
	}
	if err := c.client.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// Append stores a message in folder
func (c *IMAPClient) Append(folder string, flags []string, date time.Time, msg []byte) error {
	if err := c.client.Append(decodeName(folder), flags, date, bytes.NewBuffer(msg)); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func encodeName(name string) string {
	raw, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil {
		return name
	}
	return raw
}

func decodeName(raw string) string {
	name, err := utf7.Encoding.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return name
}
