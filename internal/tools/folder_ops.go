package tools

import (
	"context"
)

// RenameFolderTool renames a folder in place
type RenameFolderTool struct {
	toolBase
}

// Name returns the tool name
func (t *RenameFolderTool) Name() string {
	return "rename_folder"
}

// Description returns the tool description
func (t *RenameFolderTool) Description() string {
	return "Rename a folder under the same parent; saved order and system folders follow"
}

// InputSchema returns the JSON schema for tool inputs
func (t *RenameFolderTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Raw full name of the folder",
			},
			"new_name": map[string]interface{}{
				"type":        "string",
				"description": "New leaf name, without delimiter",
			},
		},
		"required": []string{"account", "folder", "new_name"},
	}
}

// Execute executes the tool
func (t *RenameFolderTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	newName, err := requiredString(params, "new_name")
	if err != nil {
		return nil, err
	}

	to, err := t.emailManager.RenameFolder(ctx, acc, folder, newName)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"folder":  to,
	}, nil
}

// UpdateFoldersOrderTool saves the display order of folders
type UpdateFoldersOrderTool struct {
	toolBase
}

// Name returns the tool name
func (t *UpdateFoldersOrderTool) Name() string {
	return "update_folders_order"
}

// Description returns the tool description
func (t *UpdateFoldersOrderTool) Description() string {
	return "Save the display order of folders as a list of raw full names"
}

// InputSchema returns the JSON schema for tool inputs
func (t *UpdateFoldersOrderTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"order": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Raw full names in display order",
			},
		},
		"required": []string{"account", "order"},
	}
}

// Execute executes the tool
func (t *UpdateFoldersOrderTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}
	order, err := stringList(params, "order")
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, invalid("order is required")
	}

	if err := t.emailManager.UpdateFoldersOrder(ctx, acc, order); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}
