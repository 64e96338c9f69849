package email

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/pkg/types"
)

// SendOptions controls the filing done after delivery.
type SendOptions struct {
	// SentFolder receives a copy; empty means the account's Sent folder.
	SentFolder string
	// NoSentCopy skips the Sent copy.
	NoSentCopy bool
	// DraftFolder holds DraftUID; empty means the account's Drafts folder.
	DraftFolder string
	// DraftUID is the draft replaced by this message, 0 for none.
	DraftUID uint32
}

// SendResult reports the secondary steps of a delivered message. Their
// failures do not fail the send.
type SendResult struct {
	MessageID      string
	SentCopyErr    error
	DraftDeleteErr error
}

// SendMessage delivers msg over SMTP, then files a copy in Sent and
// deletes the replaced draft
func (m *Manager) SendMessage(ctx context.Context, acc *types.Account, msg *EmailMessage, opts SendOptions) (*SendResult, error) {
	const op = "send message"
	if msg == nil || len(msg.Recipients()) == 0 {
		return nil, mailerr.New(mailerr.KindInvalidArgument, op, "at least one recipient is required")
	}
	out := *msg
	if out.From.Email == "" {
		out.From.Email = acc.Email
	}
	raw, messageID, err := createMessage(&out)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInvalidArgument, op, err)
	}

	srv, err := m.pool.ResolveServer(ctx, acc)
	if err != nil {
		return nil, err
	}
	secret, err := m.creds.Resolve(ctx, acc)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindAuthentication, op, err)
	}
	err = m.sender.Send(ctx, &Delivery{
		Endpoint:   srv.Outgoing,
		Auth:       srv.SMTPAuth,
		AuthMode:   srv.AuthMode,
		Login:      acc.IncomingLogin(),
		Secret:     secret,
		From:       out.From.Email,
		Recipients: out.Recipients(),
		Message:    raw,
	})
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindProtocol, op, err)
	}

	result := &SendResult{MessageID: messageID}
	logger := m.logger.WithField("account", acc.Email)

	if !opts.NoSentCopy {
		sent, err := m.systemFolder(ctx, acc, opts.SentFolder, types.FolderTypeSent)
		if err == nil && sent != "" {
			err = m.AppendMessage(ctx, acc, sent, raw, []string{FlagSeen})
		}
		if err != nil {
			result.SentCopyErr = err
			logger.WithError(err).Warn("Failed to save copy to Sent")
		}
	}

	if opts.DraftUID != 0 {
		result.DraftDeleteErr = m.deleteDraft(ctx, acc, opts.DraftFolder, opts.DraftUID)
		if result.DraftDeleteErr != nil {
			logger.WithError(result.DraftDeleteErr).Warn("Failed to delete replaced draft")
		}
	}

	logger.WithFields(logrus.Fields{
		"count":      len(out.Recipients()),
		"message_id": messageID,
	}).Info("Message sent")
	return result, nil
}

// SaveDraft appends msg to the Drafts folder, then deletes the draft it
// replaces. A failed delete is reported in DraftDeleteErr.
func (m *Manager) SaveDraft(ctx context.Context, acc *types.Account, msg *EmailMessage, folder string, replaceUID uint32) (*SendResult, error) {
	const op = "save draft"
	if msg == nil {
		return nil, mailerr.New(mailerr.KindInvalidArgument, op, "message is required")
	}
	out := *msg
	if out.From.Email == "" {
		out.From.Email = acc.Email
	}
	raw, messageID, err := createMessage(&out)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInvalidArgument, op, err)
	}

	drafts, err := m.systemFolder(ctx, acc, folder, types.FolderTypeDrafts)
	if err != nil {
		return nil, err
	}
	if drafts == "" {
		return nil, mailerr.New(mailerr.KindConfiguration, op, "no Drafts folder for %s", acc.Email)
	}
	if err := m.AppendMessage(ctx, acc, drafts, raw, []string{FlagDraft, FlagSeen}); err != nil {
		return nil, err
	}

	result := &SendResult{MessageID: messageID}
	if replaceUID != 0 {
		result.DraftDeleteErr = m.DeleteMessages(ctx, acc, drafts, []uint32{replaceUID})
	}
	return result, nil
}

func (m *Manager) deleteDraft(ctx context.Context, acc *types.Account, folder string, uid uint32) error {
	drafts, err := m.systemFolder(ctx, acc, folder, types.FolderTypeDrafts)
	if err != nil {
		return err
	}
	if drafts == "" {
		return mailerr.New(mailerr.KindConfiguration, "delete draft", "no Drafts folder for %s", acc.Email)
	}
	return m.DeleteMessages(ctx, acc, drafts, []uint32{uid})
}

// systemFolder returns explicit when set, else the folder mapped to t.
func (m *Manager) systemFolder(ctx context.Context, acc *types.Account, explicit string, t types.FolderType) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	system, err := m.systemFolders(ctx, acc)
	if err != nil {
		return "", err
	}
	return system[t], nil
}
