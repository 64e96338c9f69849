package tools

import (
	"context"
)

// GetMessagesTool fetches summaries for known UIDs
type GetMessagesTool struct {
	toolBase
}

// Name returns the tool name
func (t *GetMessagesTool) Name() string {
	return "get_messages"
}

// Description returns the tool description
func (t *GetMessagesTool) Description() string {
	return "Fetch message summaries by UID, in the order given"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetMessagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Raw full name of the folder",
			},
			"uids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "integer"},
				"description": "Message UIDs",
			},
		},
		"required": []string{"account", "folder", "uids"},
	}
}

// Execute executes the tool
func (t *GetMessagesTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	uids, err := uidList(params, "uids")
	if err != nil {
		return nil, err
	}
	return t.emailManager.GetMessages(ctx, acc, folder, uids)
}
