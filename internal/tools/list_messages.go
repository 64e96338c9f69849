package tools

import (
	"context"
	"math"

	"github.com/brandon/mailcore/pkg/types"
)

const (
	defaultPageSize = 20
	// UTC-12:00 to UTC+14:00, rounded out
	maxOffsetMinutes = 14 * 60
)

// ListMessagesTool lists one page of a folder
type ListMessagesTool struct {
	toolBase
}

// Name returns the tool name
func (t *ListMessagesTool) Name() string {
	return "list_messages"
}

// Description returns the tool description
func (t *ListMessagesTool) Description() string {
	return "List one page of a folder, optionally searched, filtered or grouped into threads"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListMessagesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Raw full name of the folder",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Entries to skip (default: 0)",
				"minimum":     0,
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Page size (default: 20, max: 999)",
				"minimum":     1,
				"maximum":     999,
			},
			"search": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Query such as from:alice subject:report has:attachment date:2024.01.01/2024.02.01",
			},
			"filters": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string", "enum": []string{"flagged", "unseen"}},
				"description": "Optional: Extra filters",
			},
			"use_threads": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Group conversations when the server supports THREAD",
			},
			"inbox_uid_next": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: INBOX UIDNEXT seen at the previous call, to report new mail",
				"minimum":     0,
				"maximum":     uint32(math.MaxUint32),
			},
			"timezone_offset": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: Caller's UTC offset in minutes for date: searches (default: server setting)",
			},
		},
		"required": []string{"account", "folder"},
	}
}

// Execute executes the tool
func (t *ListMessagesTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}
	folder, err := requiredString(params, "folder")
	if err != nil {
		return nil, err
	}
	offset, err := optionalInt(params, "offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := optionalInt(params, "limit", defaultPageSize)
	if err != nil {
		return nil, err
	}
	filters, err := stringList(params, "filters")
	if err != nil {
		return nil, err
	}
	uidNext, err := optionalInt(params, "inbox_uid_next", 0)
	if err != nil {
		return nil, err
	}
	if uidNext < 0 || int64(uidNext) > math.MaxUint32 {
		return nil, invalid("inbox_uid_next must be between 0 and %d", uint32(math.MaxUint32))
	}
	req := types.MessageListRequest{
		Folder:       folder,
		Offset:       offset,
		Limit:        limit,
		Search:       optionalString(params, "search"),
		Filters:      filters,
		UseThreads:   optionalBool(params, "use_threads"),
		InboxUIDNext: uint32(uidNext),
	}

	if _, given := params["timezone_offset"]; given {
		tz, err := optionalInt(params, "timezone_offset", 0)
		if err != nil {
			return nil, err
		}
		if tz < -maxOffsetMinutes || tz > maxOffsetMinutes {
			return nil, invalid("timezone_offset must be within %d minutes of UTC", maxOffsetMinutes)
		}
		req.TimezoneOffsetMinutes = &tz
	}

	return t.emailManager.ListMessages(ctx, acc, req)
}
