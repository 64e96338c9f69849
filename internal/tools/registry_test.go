package tools

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/email"
	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/pkg/types"
)

// newTestRegistry wires a registry whose manager never reaches IMAP.
func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertAccount(context.Background(), &types.Account{
		Email:    "user@example.com",
		Password: "secret",
	}))

	pool, err := email.NewPool(2, func() email.Client {
		t.Fatal("unexpected IMAP connection")
		return nil
	}, store, credential.StoreResolver{}, email.Timeouts{}, logger)
	require.NoError(t, err)

	mgr := email.NewManager(pool, store, credential.StoreResolver{}, nil, email.Options{}, logger)
	t.Cleanup(mgr.Close)
	return NewRegistry(mgr, logger), store
}

func TestToolDefinitions(t *testing.T) {
	reg, _ := newTestRegistry(t)

	defs := reg.GetToolDefinitions()
	var names []string
	for _, d := range defs {
		names = append(names, d["name"].(string))
		schema := d["inputSchema"].(map[string]interface{})
		assert.Contains(t, schema["required"], "account", d["name"])
	}
	assert.Equal(t, []string{
		"get_messages",
		"list_folders",
		"list_messages",
		"move_messages",
		"rename_folder",
		"send_email",
		"set_flags",
		"update_folders_order",
	}, names)
}

func TestUpdateFoldersOrderTool(t *testing.T) {
	reg, store := newTestRegistry(t)
	tool, ok := reg.GetTool("update_folders_order")
	require.True(t, ok)

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"account": "user@example.com",
		"order":   []interface{}{"INBOX", "Projects", "Trash"},
	})
	require.NoError(t, err)

	acc, err := store.GetAccountByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	order, err := store.GetFoldersOrder(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX", "Projects", "Trash"}, order)
}

func TestToolErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	tests := []struct {
		name   string
		tool   string
		params map[string]interface{}
		kind   mailerr.Kind
	}{
		{"missing account", "list_folders", map[string]interface{}{}, mailerr.KindInvalidArgument},
		{"unknown account", "list_folders", map[string]interface{}{"account": "nobody@example.com"}, mailerr.KindConfiguration},
		{"missing folder", "list_messages", map[string]interface{}{"account": "user@example.com"}, mailerr.KindInvalidArgument},
		{"bad offset", "list_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "offset": "x"}, mailerr.KindInvalidArgument},
		{"negative uid next", "list_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "inbox_uid_next": -1.0}, mailerr.KindInvalidArgument},
		{"uid next past uint32", "list_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "inbox_uid_next": 4294967296.0}, mailerr.KindInvalidArgument},
		{"uid next string past uint32", "list_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "inbox_uid_next": "4294967296"}, mailerr.KindInvalidArgument},
		{"timezone out of range", "list_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "timezone_offset": 1000.0}, mailerr.KindInvalidArgument},
		{"fractional timezone", "list_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "timezone_offset": 90.5}, mailerr.KindInvalidArgument},
		{"zero uid", "get_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "uids": []interface{}{0.0}}, mailerr.KindInvalidArgument},
		{"fractional uid", "move_messages", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "uids": []interface{}{1.5}}, mailerr.KindInvalidArgument},
		{"set not boolean", "set_flags", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "flag": `\Seen`, "set": "yes"}, mailerr.KindInvalidArgument},
		{"all flagged", "set_flags", map[string]interface{}{"account": "user@example.com", "folder": "INBOX", "flag": `\Flagged`, "set": true}, mailerr.KindInvalidArgument},
		{"empty order", "update_folders_order", map[string]interface{}{"account": "user@example.com", "order": []interface{}{}}, mailerr.KindInvalidArgument},
		{"blank order entry", "update_folders_order", map[string]interface{}{"account": "user@example.com", "order": []interface{}{"INBOX", " "}}, mailerr.KindInvalidArgument},
		{"no body", "send_email", map[string]interface{}{"account": "user@example.com", "subject": "hi", "to": "a@example.com"}, mailerr.KindInvalidArgument},
		{"bad address", "send_email", map[string]interface{}{"account": "user@example.com", "subject": "hi", "to": "not an address", "body_text": "x"}, mailerr.KindInvalidArgument},
		{"no recipient", "send_email", map[string]interface{}{"account": "user@example.com", "subject": "hi", "body_text": "x"}, mailerr.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, ok := reg.GetTool(tt.tool)
			require.True(t, ok)
			_, err := tool.Execute(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, tt.kind, mailerr.KindOf(err), err.Error())
			assert.Equal(t, tt.kind.Code(), ErrorData(err)["code"])
		})
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]interface{}{
		"csv":   " a@example.com , Bob <bob@example.com>,",
		"list":  []interface{}{"x", "y"},
		"mixed": []interface{}{"x", 1.0},
		"num":   "12",
		"flag":  "true",
	}

	list, err := stringList(params, "csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "Bob <bob@example.com>"}, list)

	list, err = stringList(params, "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, list)

	_, err = stringList(params, "mixed")
	assert.True(t, mailerr.Is(err, mailerr.KindInvalidArgument))

	addrs, err := addressList(params, "csv")
	require.NoError(t, err)
	assert.Equal(t, []types.Address{
		{Email: "a@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	}, addrs)

	n, err := optionalInt(params, "num", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	n, err = optionalInt(params, "absent", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	assert.True(t, optionalBool(params, "flag"))
	assert.False(t, optionalBool(params, "absent"))

	assert.Equal(t, "unknown", ErrorData(assert.AnError)["code"])
}
