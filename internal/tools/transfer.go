package tools

import (
	"context"
	"strings"
)

// MoveMessagesTool moves messages between folders
type MoveMessagesTool struct {
	toolBase
}

// Name returns the tool name
func (t *MoveMessagesTool) Name() string {
	return "move_messages"
}

// Description returns the tool description
func (t *MoveMessagesTool) Description() string {
	return "Move messages to another folder, or to Trash when no destination is given"
}

// InputSchema returns the JSON schema for tool inputs
func (t *MoveMessagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Source folder",
			},
			"to_folder": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Destination folder; Trash when omitted",
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
func (t *MoveMessagesTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
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

	if to := optionalString(params, "to_folder"); to != "" {
		err = t.emailManager.MoveMessages(ctx, acc, folder, to, uids)
	} else {
		err = t.emailManager.MoveToTrash(ctx, acc, folder, uids)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"count":   len(uids),
	}, nil
}

// SetFlagsTool adds or removes a flag
type SetFlagsTool struct {
	toolBase
}

// Name returns the tool name
func (t *SetFlagsTool) Name() string {
	return "set_flags"
}

// Description returns the tool description
func (t *SetFlagsTool) Description() string {
	return "Add or remove a flag on messages, or mark a whole folder seen or unseen"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SetFlagsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Folder holding the messages",
			},
			"uids": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "integer"},
				"description": "Optional: Message UIDs; every message when omitted (\\Seen only)",
			},
			"flag": map[string]interface{}{
				"type":        "string",
				"description": "Flag such as \\Seen, \\Flagged or a keyword",
			},
			"set": map[string]interface{}{
				"type":        "boolean",
				"description": "true adds the flag, false removes it",
			},
			"skip_non_permanent": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Silently skip flags the folder cannot keep",
			},
		},
		"required": []string{"account", "folder", "flag", "set"},
	}
}

// Execute executes the tool
func (t *SetFlagsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	flag, err := requiredString(params, "flag")
	if err != nil {
		return nil, err
	}
	if _, ok := params["set"].(bool); !ok {
		return nil, invalid("set must be a boolean")
	}
	set := optionalBool(params, "set")

	if _, given := params["uids"]; !given {
		if !strings.EqualFold(flag, `\Seen`) {
			return nil, invalid("uids are required unless flag is \\Seen")
		}
		if err := t.emailManager.SetAllSeen(ctx, acc, folder, set); err != nil {
			return nil, err
		}
		return map[string]interface{}{"success": true}, nil
	}

	uids, err := uidList(params, "uids")
	if err != nil {
		return nil, err
	}
	err = t.emailManager.SetFlag(ctx, acc, folder, uids, flag, set, optionalBool(params, "skip_non_permanent"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"count":   len(uids),
	}, nil
}
