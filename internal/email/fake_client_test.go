package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/search"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/internal/thread"
	"github.com/brandon/mailcore/pkg/types"
)

type fakeMessage struct {
	uid       uint32
	flags     []string
	from      string
	to        string
	subject   string
	body      string
	date      time.Time
	size      uint32
	ctype     string
	structure *types.BodyPart
	// replyTo is the UID this message answers, 0 for a thread root.
	replyTo uint32
}

func (m *fakeMessage) hasFlag(flag string) bool {
	return slices.ContainsFunc(m.flags, func(f string) bool { return strings.EqualFold(f, flag) })
}

type fakeMailbox struct {
	name       string
	attrs      []string
	subscribed bool
	uidNext    uint32
	msgs       []*fakeMessage
}

// fakeServer is an in-memory IMAP server shared by the fakeClients it
// hands out.
type fakeServer struct {
	mu             sync.Mutex
	delimiter      string
	caps           map[string]bool
	order          []string
	boxes          map[string]*fakeMailbox
	permanentFlags []string
	password       string
	failConnect    bool
	rejectCharset  bool
	connects       int
	logins         int
	calls          []string
}

func newFakeServer(caps ...string) *fakeServer {
	s := &fakeServer{
		delimiter:      "/",
		caps:           make(map[string]bool),
		boxes:          make(map[string]*fakeMailbox),
		permanentFlags: []string{`\Seen`, `\Flagged`, `\Deleted`, `\Draft`, `\Answered`},
		password:       "secret",
	}
	for _, c := range caps {
		s.caps[c] = true
	}
	s.addFolder(types.InboxName)
	return s
}

func (s *fakeServer) addFolder(name string, attrs ...string) *fakeMailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFolderLocked(name, attrs...)
}

func (s *fakeServer) addFolderLocked(name string, attrs ...string) *fakeMailbox {
	box := &fakeMailbox{name: name, attrs: attrs, subscribed: true, uidNext: 1}
	s.boxes[name] = box
	s.order = append(s.order, name)
	return box
}

// addMessages appends messages to folder, assigning UIDs and dates in
// arrival order.
func (s *fakeServer) addMessages(folder string, msgs ...*fakeMessage) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	box := s.boxes[folder]
	var uids []uint32
	for _, m := range msgs {
		m.uid = box.uidNext
		box.uidNext++
		if m.date.IsZero() {
			m.date = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.uid) * time.Hour)
		}
		if m.size == 0 {
			m.size = 100 * m.uid
		}
		box.msgs = append(box.msgs, m)
		uids = append(uids, m.uid)
	}
	return uids
}

func (s *fakeServer) mailbox(name string) *fakeMailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boxes[name]
}

func (s *fakeServer) uids(folder string) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var uids []uint32
	for _, m := range s.boxes[folder].msgs {
		uids = append(uids, m.uid)
	}
	return uids
}

func (s *fakeServer) callCount(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (s *fakeServer) newClient() Client {
	return &fakeClient{srv: s}
}

type fakeClient struct {
	srv       *fakeServer
	connected bool
	loggedIn  bool
	selected  *fakeMailbox
}

func (c *fakeClient) lock(call string) func() {
	c.srv.mu.Lock()
	c.srv.calls = append(c.srv.calls, call)
	return c.srv.mu.Unlock
}

func (c *fakeClient) Connect(types.Endpoint, Timeouts) error {
	defer c.lock("CONNECT")()
	if c.srv.failConnect {
		return errors.New("dial tcp: connection refused")
	}
	c.srv.connects++
	c.connected = true
	c.loggedIn = false
	return nil
}

func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) IsLoggedIn() bool  { return c.connected && c.loggedIn }

func (c *fakeClient) Login(_ string, secret credential.Secret, _ types.AuthMode) error {
	defer c.lock("LOGIN")()
	if secret.Password != c.srv.password {
		return errors.New("NO [AUTHENTICATIONFAILED] invalid credentials")
	}
	c.srv.logins++
	c.loggedIn = true
	return nil
}

func (c *fakeClient) Logout() error {
	c.loggedIn = false
	return nil
}

func (c *fakeClient) Close() error {
	c.connected = false
	c.loggedIn = false
	c.selected = nil
	return nil
}

// drop simulates the server closing the connection.
func (c *fakeClient) drop() {
	c.connected = false
	c.loggedIn = false
}

func (c *fakeClient) IsSupported(capability string) bool {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.caps[capability]
}

func (c *fakeClient) Delimiter() (string, error) { return c.srv.delimiter, nil }

func (c *fakeClient) ListFolders() ([]RawFolder, error) {
	defer c.lock("LIST")()
	return c.list(false), nil
}

func (c *fakeClient) ListSubscribed() ([]RawFolder, error) {
	defer c.lock("LSUB")()
	return c.list(true), nil
}

func (c *fakeClient) list(subscribed bool) []RawFolder {
	var out []RawFolder
	for _, name := range c.srv.order {
		box := c.srv.boxes[name]
		if subscribed && !box.subscribed {
			continue
		}
		out = append(out, RawFolder{Name: name, Delimiter: c.srv.delimiter, Attributes: box.attrs})
	}
	return out
}

func (c *fakeClient) CreateFolder(name string) error {
	defer c.lock("CREATE " + name)()
	if _, ok := c.srv.boxes[name]; ok {
		return fmt.Errorf("NO mailbox %s already exists", name)
	}
	box := c.srv.addFolderLocked(name)
	box.subscribed = false
	return nil
}

func (c *fakeClient) DeleteFolder(name string) error {
	defer c.lock("DELETE " + name)()
	if _, ok := c.srv.boxes[name]; !ok {
		return fmt.Errorf("NO mailbox %s does not exist", name)
	}
	delete(c.srv.boxes, name)
	c.srv.order = slices.DeleteFunc(c.srv.order, func(n string) bool { return n == name })
	return nil
}

func (c *fakeClient) RenameFolder(from, to string) error {
	defer c.lock("RENAME " + from)()
	if _, ok := c.srv.boxes[from]; !ok {
		return fmt.Errorf("NO mailbox %s does not exist", from)
	}
	for i, name := range c.srv.order {
		if name == from || strings.HasPrefix(name, from+c.srv.delimiter) {
			box := c.srv.boxes[name]
			delete(c.srv.boxes, name)
			box.name = to + name[len(from):]
			c.srv.boxes[box.name] = box
			c.srv.order[i] = box.name
		}
	}
	return nil
}

func (c *fakeClient) Subscribe(name string, subscribe bool) error {
	defer c.lock("SUBSCRIBE " + name)()
	box, ok := c.srv.boxes[name]
	if !ok {
		return fmt.Errorf("NO mailbox %s does not exist", name)
	}
	box.subscribed = subscribe
	return nil
}

func (c *fakeClient) state(box *fakeMailbox) *MailboxState {
	st := &MailboxState{
		Name:           box.name,
		Messages:       uint32(len(box.msgs)),
		UIDNext:        box.uidNext,
		UIDValidity:    1,
		PermanentFlags: c.srv.permanentFlags,
	}
	for _, m := range box.msgs {
		if !m.hasFlag(`\Seen`) {
			st.Unseen++
		}
	}
	return st
}

func (c *fakeClient) Select(name string, readOnly bool) (*MailboxState, error) {
	defer c.lock("SELECT " + name)()
	box, ok := c.srv.boxes[name]
	if !ok {
		return nil, fmt.Errorf("NO mailbox %s does not exist", name)
	}
	c.selected = box
	st := c.state(box)
	st.ReadOnly = readOnly
	return st, nil
}

func (c *fakeClient) Status(name string) (*MailboxState, error) {
	defer c.lock("STATUS " + name)()
	box, ok := c.srv.boxes[name]
	if !ok {
		return nil, fmt.Errorf("NO mailbox %s does not exist", name)
	}
	return c.state(box), nil
}

func (c *fakeClient) toFetched(seq int, m *fakeMessage, items FetchItems) *FetchedMessage {
	fm := &FetchedMessage{SeqNum: uint32(seq + 1), UID: m.uid}
	if items.Flags {
		fm.Flags = slices.Clone(m.flags)
	}
	if items.Size {
		fm.Size = m.size
	}
	if items.InternalDate {
		fm.InternalDate = m.date
	}
	if items.Headers {
		fm.Subject = m.subject
		fm.From = []types.Address{{Email: m.from}}
		fm.ContentType = m.ctype
	}
	if items.Structure {
		fm.Structure = m.structure
	}
	return fm
}

// Fetch answers in mailbox order, as servers do, not in request order.
func (c *fakeClient) Fetch(ids []uint32, byUID bool, items FetchItems) ([]*FetchedMessage, error) {
	defer c.lock(fmt.Sprintf("FETCH %d", len(ids)))()
	if c.selected == nil {
		return nil, errors.New("BAD no mailbox selected")
	}
	var out []*FetchedMessage
	for i, m := range c.selected.msgs {
		id := uint32(i + 1)
		if byUID {
			id = m.uid
		}
		if slices.Contains(ids, id) {
			out = append(out, c.toFetched(i, m, items))
		}
	}
	return out, nil
}

func (c *fakeClient) FetchUIDRange(from uint32, items FetchItems) ([]*FetchedMessage, error) {
	defer c.lock("FETCH RANGE")()
	msgs := c.selected.msgs
	var out []*FetchedMessage
	for i, m := range msgs {
		if m.uid >= from {
			out = append(out, c.toFetched(i, m, items))
		}
	}
	if len(out) == 0 && len(msgs) > 0 {
		last := len(msgs) - 1
		out = append(out, c.toFetched(last, msgs[last], items))
	}
	return out, nil
}

func (c *fakeClient) match(criteria, charset string) ([]*fakeMessage, error) {
	if c.srv.rejectCharset && charset != "" {
		return nil, ErrBadCharset
	}
	var keys []*search.Key
	if criteria != "" {
		var err error
		if keys, err = search.ParseKeys(criteria); err != nil {
			return nil, err
		}
	}
	var out []*fakeMessage
	for _, m := range c.selected.msgs {
		if matchesAll(m, keys) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *fakeClient) Search(criteria, charset string) ([]uint32, error) {
	defer c.lock("SEARCH " + charset)()
	msgs, err := c.match(criteria, charset)
	if err != nil {
		return nil, err
	}
	uids := make([]uint32, 0, len(msgs))
	for _, m := range msgs {
		uids = append(uids, m.uid)
	}
	return uids, nil
}

func (c *fakeClient) Sort(criteria, charset string) ([]uint32, error) {
	defer c.lock("SORT " + charset)()
	msgs, err := c.match(criteria, charset)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(msgs, func(a, b *fakeMessage) int {
		if d := b.date.Compare(a.date); d != 0 {
			return d
		}
		return int(b.uid) - int(a.uid)
	})
	uids := make([]uint32, 0, len(msgs))
	for _, m := range msgs {
		uids = append(uids, m.uid)
	}
	return uids, nil
}

func (c *fakeClient) Thread() ([]*thread.Node, error) {
	defer c.lock("THREAD")()
	nodes := make(map[uint32]*thread.Node)
	for _, m := range c.selected.msgs {
		nodes[m.uid] = &thread.Node{UID: m.uid}
	}
	var roots []*thread.Node
	for _, m := range c.selected.msgs {
		parent, ok := nodes[m.replyTo]
		if m.replyTo == 0 || !ok {
			roots = append(roots, nodes[m.uid])
			continue
		}
		parent.Children = append(parent.Children, nodes[m.uid])
	}
	return roots, nil
}

func (c *fakeClient) storeOne(m *fakeMessage, op FlagOp, flags []string) {
	switch op {
	case FlagReplace:
		m.flags = slices.Clone(flags)
	case FlagRemove:
		m.flags = slices.DeleteFunc(m.flags, func(f string) bool {
			return slices.ContainsFunc(flags, func(g string) bool { return strings.EqualFold(f, g) })
		})
	default:
		for _, f := range flags {
			if !m.hasFlag(f) {
				m.flags = append(m.flags, f)
			}
		}
	}
}

func (c *fakeClient) Store(uids []uint32, op FlagOp, flags []string) error {
	defer c.lock("STORE")()
	for _, m := range c.selected.msgs {
		if slices.Contains(uids, m.uid) {
			c.storeOne(m, op, flags)
		}
	}
	return nil
}

func (c *fakeClient) StoreAll(op FlagOp, flags []string) error {
	defer c.lock("STORE ALL")()
	for _, m := range c.selected.msgs {
		c.storeOne(m, op, flags)
	}
	return nil
}

func (c *fakeClient) copyTo(uids []uint32, dest string) error {
	box, ok := c.srv.boxes[dest]
	if !ok {
		return fmt.Errorf("NO [TRYCREATE] mailbox %s does not exist", dest)
	}
	for _, m := range c.selected.msgs {
		if !slices.Contains(uids, m.uid) {
			continue
		}
		cp := *m
		cp.flags = slices.Clone(m.flags)
		cp.uid = box.uidNext
		box.uidNext++
		box.msgs = append(box.msgs, &cp)
	}
	return nil
}

func (c *fakeClient) Copy(uids []uint32, dest string) error {
	defer c.lock("COPY " + dest)()
	return c.copyTo(uids, dest)
}

func (c *fakeClient) Move(uids []uint32, dest string) error {
	defer c.lock("MOVE " + dest)()
	if err := c.copyTo(uids, dest); err != nil {
		return err
	}
	c.selected.msgs = slices.DeleteFunc(c.selected.msgs, func(m *fakeMessage) bool {
		return slices.Contains(uids, m.uid)
	})
	return nil
}

func (c *fakeClient) Expunge(uids []uint32) error {
	defer c.lock("EXPUNGE")()
	c.selected.msgs = slices.DeleteFunc(c.selected.msgs, func(m *fakeMessage) bool {
		if len(uids) > 0 && !slices.Contains(uids, m.uid) {
			return false
		}
		return m.hasFlag(`\Deleted`)
	})
	return nil
}

func (c *fakeClient) Append(folder string, flags []string, date time.Time, message []byte) error {
	defer c.lock("APPEND " + folder)()
	box, ok := c.srv.boxes[folder]
	if !ok {
		return fmt.Errorf("NO [TRYCREATE] mailbox %s does not exist", folder)
	}
	box.msgs = append(box.msgs, &fakeMessage{
		uid:   box.uidNext,
		flags: slices.Clone(flags),
		body:  string(message),
		date:  date,
		size:  uint32(len(message)),
	})
	box.uidNext++
	return nil
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchesAll(m *fakeMessage, keys []*search.Key) bool {
	for _, k := range keys {
		if !matches(m, k) {
			return false
		}
	}
	return true
}

func matches(m *fakeMessage, k *search.Key) bool {
	arg := func(i int) string {
		if i < len(k.Args) {
			return k.Args[i]
		}
		return ""
	}
	switch k.Name {
	case "ALL":
		return true
	case "()":
		return matchesAll(m, k.Sub)
	case "OR":
		return matches(m, k.Sub[0]) || matches(m, k.Sub[1])
	case "NOT":
		return !matches(m, k.Sub[0])
	case "FROM":
		return contains(m.from, arg(0))
	case "TO":
		return contains(m.to, arg(0))
	case "SUBJECT":
		return contains(m.subject, arg(0))
	case "BODY", "TEXT":
		return contains(m.body, arg(0)) || contains(m.subject, arg(0))
	case "FLAGGED":
		return m.hasFlag(`\Flagged`)
	case "UNSEEN":
		return !m.hasFlag(`\Seen`)
	case "SEEN":
		return m.hasFlag(`\Seen`)
	case "HEADER":
		return strings.EqualFold(arg(0), "Content-Type") && contains(m.ctype, arg(1))
	case "SINCE", "BEFORE":
		day, err := time.Parse("2-Jan-2006", arg(0))
		if err != nil {
			return false
		}
		if k.Name == "SINCE" {
			return !m.date.Before(day)
		}
		return m.date.Before(day)
	}
	return false
}

// fakeSender records deliveries.
type fakeSender struct {
	mu         sync.Mutex
	err        error
	deliveries []*Delivery
}

func (s *fakeSender) Send(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deliveries = append(s.deliveries, d)
	return nil
}

type testEnv struct {
	srv    *fakeServer
	store  *storage.MemoryStore
	pool   *Pool
	mgr    *Manager
	sender *fakeSender
	acc    *types.Account
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T, srv *fakeServer, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	server := &types.Server{
		Name:      "example",
		Incoming:  types.Endpoint{Host: "imap.example.com", Port: 993, Security: types.SecuritySSL},
		Outgoing:  types.Endpoint{Host: "smtp.example.com", Port: 587, Security: types.SecurityStartTLS},
		SMTPAuth:  types.SMTPAuthPlain,
		AuthMode:  types.AuthModePassword,
		OwnerType: types.OwnerSuperAdmin,
		Domains:   []string{"example.com"},
	}
	require.NoError(t, store.UpsertServer(ctx, server))

	acc := &types.Account{
		Email:        "user@example.com",
		Password:     "secret",
		UseThreading: true,
		UseSearch:    true,
	}
	require.NoError(t, store.UpsertAccount(ctx, acc))

	logger := quietLogger()
	pool, err := NewPool(8, srv.newClient, store, credential.StoreResolver{}, Timeouts{}, logger)
	require.NoError(t, err)

	sender := &fakeSender{}
	mgr := NewManager(pool, store, credential.StoreResolver{}, sender, opts, logger)
	t.Cleanup(mgr.Close)

	return &testEnv{srv: srv, store: store, pool: pool, mgr: mgr, sender: sender, acc: acc}
}
