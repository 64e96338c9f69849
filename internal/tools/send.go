package tools

import (
	"context"

	"github.com/brandon/mailcore/internal/email"
	"github.com/brandon/mailcore/internal/mailerr"
)

// SendEmailTool sends a new email or saves it as a draft
type SendEmailTool struct {
	toolBase
}

// Name returns the tool name
func (t *SendEmailTool) Name() string {
	return "send_email"
}

// Description returns the tool description
func (t *SendEmailTool) Description() string {
	return "Send an email with text or HTML body, CC and BCC, filing a copy in Sent; or save it as a draft"
}

// InputSchema returns the JSON schema for tool inputs
func (t *SendEmailTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account": accountSchema,
			"to": map[string]interface{}{
				"type":        "string",
				"description": "Recipient email address(es) (comma-separated)",
			},
			"cc": map[string]interface{}{
				"type":        "string",
				"description": "Optional: CC recipients (comma-separated)",
			},
			"bcc": map[string]interface{}{
				"type":        "string",
				"description": "Optional: BCC recipients (comma-separated)",
			},
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Email subject",
			},
			"body_text": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Plain text body",
			},
			"body_html": map[string]interface{}{
				"type":        "string",
				"description": "Optional: HTML body",
			},
			"reply_to": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Reply-To header",
			},
			"in_reply_to": map[string]interface{}{
				"type":        "string",
				"description": "Optional: In-Reply-To header (for replies)",
			},
			"draft_uid": map[string]interface{}{
				"type":        "integer",
				"description": "Optional: UID of the draft this message replaces",
			},
			"no_sent_copy": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Do not file a copy in Sent",
			},
			"save_draft": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Save to Drafts instead of sending",
			},
		},
		"required": []string{"account", "subject"},
	}
}

// Execute executes the tool
func (t *SendEmailTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := t.account(ctx, params)
	if err != nil {
		return nil, err
	}
	subject, err := requiredString(params, "subject")
	if err != nil {
		return nil, err
	}

	msg := &email.EmailMessage{
		Subject:   subject,
		BodyText:  optionalString(params, "body_text"),
		BodyHTML:  optionalString(params, "body_html"),
		ReplyTo:   optionalString(params, "reply_to"),
		InReplyTo: optionalString(params, "in_reply_to"),
	}
	if msg.BodyText == "" && msg.BodyHTML == "" {
		return nil, invalid("either body_text or body_html is required")
	}
	if msg.To, err = addressList(params, "to"); err != nil {
		return nil, err
	}
	if msg.Cc, err = addressList(params, "cc"); err != nil {
		return nil, err
	}
	if msg.Bcc, err = addressList(params, "bcc"); err != nil {
		return nil, err
	}

	draftUID, err := optionalInt(params, "draft_uid", 0)
	if err != nil {
		return nil, err
	}
	if draftUID < 0 {
		return nil, invalid("draft_uid must not be negative")
	}

	if optionalBool(params, "save_draft") {
		res, err := t.emailManager.SaveDraft(ctx, acc, msg, "", uint32(draftUID))
		if err != nil {
			return nil, err
		}
		return sendResponse(res), nil
	}

	if len(msg.To) == 0 {
		return nil, invalid("to is required")
	}
	res, err := t.emailManager.SendMessage(ctx, acc, msg, email.SendOptions{
		NoSentCopy: optionalBool(params, "no_sent_copy"),
		DraftUID:   uint32(draftUID),
	})
	if err != nil {
		return nil, err
	}
	return sendResponse(res), nil
}

func sendResponse(res *email.SendResult) map[string]interface{} {
	out := map[string]interface{}{
		"success":    true,
		"message_id": res.MessageID,
	}
	if res.SentCopyErr != nil {
		out["sent_copy_error"] = mailerr.Code(res.SentCopyErr)
	}
	if res.DraftDeleteErr != nil {
		out["draft_delete_error"] = mailerr.Code(res.DraftDeleteErr)
	}
	return out
}
