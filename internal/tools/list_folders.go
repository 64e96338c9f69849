package tools

import (
	"context"

	"github.com/brandon/mailcore/internal/email"
)

// ListFoldersTool lists the folder tree of an account
type ListFoldersTool struct {
	toolBase
}

// Name returns the tool name
func (t *ListFoldersTool) Name() string {
	return "list_folders"
}

// Description returns the tool description
func (t *ListFoldersTool) Description() string {
	return "List the folder tree of an account with system folders typed and the saved order applied"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"create_missing": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Create missing Drafts, Sent, Spam and Trash folders",
			},
			"with_counts": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Attach message counts and change hashes",
			},
		},
		"required": []string{"account"},
	}
}

// Execute executes the tool
func (t *ListFoldersTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}

	coll, err := t.emailManager.ListFolders(ctx, acc, optionalBool(params, "create_missing"))
	if err != nil {
		return nil, err
	}

	if optionalBool(params, "with_counts") {
		var names []string
		for f := range coll.All() {
			if f.Selectable {
				names = append(names, f.FullNameRaw)
			}
		}
		counts, err := t.emailManager.FolderCounts(ctx, acc, names)
		if err != nil {
			return nil, err
		}
		email.ApplyStatus(coll, counts)
	}

	return map[string]interface{}{
		"folders":       coll,
		"folders_order": acc.FoldersOrder,
	}, nil
}
