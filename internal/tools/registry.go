package tools

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/email"
	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/pkg/types"
)

// Registry manages MCP tools
type Registry struct {
	logger       *logrus.Logger
	emailManager *email.Manager
	tools        map[string]Tool
}

// Tool represents an MCP tool
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

// NewRegistry creates a new tool registry
func NewRegistry(emailManager *email.Manager, logger *logrus.Logger) *Registry {
	reg := &Registry{
		logger:       logger,
		emailManager: emailManager,
		tools:        make(map[string]Tool),
	}
	reg.registerTools()
	return reg
}

// registerTools registers all available tools
func (r *Registry) registerTools() {
	base := toolBase{emailManager: r.emailManager, logger: r.logger}
	toolList := []Tool{
		&ListFoldersTool{base},
		&RenameFolderTool{base},
		&UpdateFoldersOrderTool{base},
		&ListMessagesTool{base},
		&GetMessagesTool{base},
		&MoveMessagesTool{base},
		&SetFlagsTool{base},
		&SendEmailTool{base},
	}

	for _, tool := range toolList {
		r.tools[tool.Name()] = tool
		r.logger.WithField("tool", tool.Name()).Debug("Registered tool")
	}

	r.logger.WithField("count", len(r.tools)).Info("Registered tools")
}

// GetTool returns a tool by name
func (r *Registry) GetTool(name string) (Tool, bool) {
	tool, exists := r.tools[name]
	return tool, exists
}

// GetToolDefinitions returns tool definitions for MCP, sorted by name
func (r *Registry) GetToolDefinitions() []map[string]interface{} {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]map[string]interface{}, 0, len(r.tools))
	for _, name := range names {
		tool := r.tools[name]
		definitions = append(definitions, map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"inputSchema": tool.InputSchema(),
		})
	}
	return definitions
}

// toolBase is embedded by every tool.
type toolBase struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

func (b toolBase) account(ctx context.Context, params map[string]interface{}) (*types.Account, error) {
	addr, err := requiredString(params, "account")
	if err != nil {
		return nil, err
	}
	return b.emailManager.Account(ctx, addr)
}

var accountSchema = map[string]interface{}{
	"type":        "string",
	"description": "Email address of the account",
}

func invalid(format string, args ...interface{}) error {
	return mailerr.New(mailerr.KindInvalidArgument, "tool params", format, args...)
}

func requiredString(params map[string]interface{}, key string) (string, error) {
	s, _ := params[key].(string)
	if strings.TrimSpace(s) == "" {
		return "", invalid("%s is required", key)
	}
	return s, nil
}

func optionalString(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func optionalBool(params map[string]interface{}, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// optionalInt accepts JSON numbers and numeric strings.
func optionalInt(params map[string]interface{}, key string, def int) (int, error) {
	switch v := params[key].(type) {
	case nil:
		return def, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxUint32 {
			return 0, invalid("%s must be an integer in range", key)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, invalid("%s must be a number", key)
		}
		return n, nil
	}
	return 0, invalid("%s must be a number", key)
}

func stringList(params map[string]interface{}, key string) ([]string, error) {
	switch v := params[key].(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, invalid("%s must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalid("%s must be a list of strings", key)
}

func uidList(params map[string]interface{}, key string) ([]uint32, error) {
	raw, ok := params[key].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, invalid("%s is required", key)
	}
	uids := make([]uint32, 0, len(raw))
	for _, item := range raw {
		n, ok := item.(float64)
		if !ok || n < 1 || n > float64(^uint32(0)) || n != float64(uint32(n)) {
			return nil, invalid("%s must contain positive integers", key)
		}
		uids = append(uids, uint32(n))
	}
	return uids, nil
}

func addressList(params map[string]interface{}, key string) ([]types.Address, error) {
	list, err := stringList(params, key)
	if err != nil {
		return nil, err
	}
	out := make([]types.Address, 0, len(list))
	for _, s := range list {
		addr, err := mail.ParseAddress(s)
		if err != nil {
			return nil, invalid("%s: invalid address %q", key, s)
		}
		out = append(out, types.Address{Name: addr.Name, Email: addr.Address})
	}
	return out, nil
}

// ErrorData is the error payload returned to tool callers.
func ErrorData(err error) map[string]interface{} {
	code := mailerr.Code(err)
	if code == "" {
		code = mailerr.KindUnknown.Code()
	}
	return map[string]interface{}{"code": code}
}
