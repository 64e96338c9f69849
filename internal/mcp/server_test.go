package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcore/internal/credential"
	"github.com/brandon/mailcore/internal/email"
	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/internal/tools"
	"github.com/brandon/mailcore/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertAccount(context.Background(), &types.Account{Email: "user@example.com"}))
	pool, err := email.NewPool(2, func() email.Client { return nil }, store, credential.StoreResolver{}, email.Timeouts{}, logger)
	require.NoError(t, err)
	mgr := email.NewManager(pool, store, credential.StoreResolver{}, nil, email.Options{}, logger)
	t.Cleanup(mgr.Close)

	return NewServer(tools.NewRegistry(mgr, logger), logger)
}

// exchange runs the server over input and returns one decoded response per
// output line.
func exchange(t *testing.T, s *Server, input string) []map[string]interface{} {
	t.Helper()
	var out strings.Builder
	require.NoError(t, s.Run(context.Background(), strings.NewReader(input), &out))

	var responses []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestServer_Handshake(t *testing.T) {
	s := newTestServer(t)
	responses := exchange(t, s, `
{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}
{"jsonrpc":"2.0","method":"notifications/initialized"}
{"jsonrpc":"2.0","id":"two","method":"tools/list"}
{"jsonrpc":"2.0","id":3,"method":"resources/list"}
`)
	require.Len(t, responses, 3)

	initRes := responses[0]["result"].(map[string]interface{})
	assert.Equal(t, protocolVersion, initRes["protocolVersion"])
	assert.Equal(t, "mailcore", initRes["serverInfo"].(map[string]interface{})["name"])

	assert.Equal(t, "two", responses[1]["id"])
	list := responses[1]["result"].(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, list, 8)

	rpcErr := responses[2]["error"].(map[string]interface{})
	assert.EqualValues(t, codeMethodNotFound, rpcErr["code"])
}

func TestServer_ToolCall(t *testing.T) {
	s := newTestServer(t)
	responses := exchange(t, s, `
{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"update_folders_order","arguments":{"account":"user@example.com","order":["INBOX","Archive"]}}}
{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"list_messages","arguments":{"account":"user@example.com"}}}
{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"no_such_tool"}}
{"jsonrpc":"2.0","id":4,"method":"tools/call"}
`)
	require.Len(t, responses, 4)

	content := responses[0]["result"].(map[string]interface{})["content"].([]interface{})
	require.Len(t, content, 1)
	assert.JSONEq(t, `{"success":true}`, content[0].(map[string]interface{})["text"].(string))

	rpcErr := responses[1]["error"].(map[string]interface{})
	assert.EqualValues(t, codeInternalError, rpcErr["code"])
	assert.Equal(t, map[string]interface{}{"code": "invalid_argument"}, rpcErr["data"])

	assert.EqualValues(t, codeMethodNotFound, responses[2]["error"].(map[string]interface{})["code"])
	assert.EqualValues(t, codeInvalidParams, responses[3]["error"].(map[string]interface{})["code"])
}

func TestServer_ParseErrorStops(t *testing.T) {
	s := newTestServer(t)
	var out strings.Builder
	err := s.Run(context.Background(), strings.NewReader("{not json\n"), &out)
	require.Error(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &resp))
	assert.EqualValues(t, codeParseError, resp["error"].(map[string]interface{})["code"])
}

func TestServer_CancelledContext(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	require.NoError(t, s.Run(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), &out))
	assert.Empty(t, out.String())
}
