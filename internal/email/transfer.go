package email

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/pkg/types"
)

// Standard flags.
const (
	FlagSeen     = `\Seen`
	FlagFlagged  = `\Flagged`
	FlagDeleted  = `\Deleted`
	FlagDraft    = `\Draft`
	FlagAnswered = `\Answered`
)

func requireMessages(op, folder string, uids []uint32) error {
	if folder == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "folder is required")
	}
	if len(uids) == 0 {
		return mailerr.New(mailerr.KindInvalidArgument, op, "uids are required")
	}
	return nil
}

// MoveMessages moves uids from one folder to another, emulating MOVE with
// COPY, \Deleted and EXPUNGE when the server lacks it.
func (m *Manager) MoveMessages(ctx context.Context, acc *types.Account, from, to string, uids []uint32) error {
	const op = "move messages"
	if err := requireMessages(op, from, uids); err != nil {
		return err
	}
	if to == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "destination folder is required")
	}
	if from == to {
		return nil
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		return m.move(c, from, to, uids)
	})
}

func (m *Manager) move(c Client, from, to string, uids []uint32) error {
	if _, err := c.Select(from, false); err != nil {
		return err
	}
	if c.IsSupported(CapMove) {
		return c.Move(uids, to)
	}
	m.logger.WithField("folder", from).Debug("MOVE not supported, copying")
	if err := c.Copy(uids, to); err != nil {
		return err
	}
	return m.expungeUIDs(c, uids)
}

func (m *Manager) expungeUIDs(c Client, uids []uint32) error {
	if err := c.Store(uids, FlagAdd, []string{FlagDeleted}); err != nil {
		return err
	}
	return c.Expunge(uids)
}

// CopyMessages copies uids into another folder
func (m *Manager) CopyMessages(ctx context.Context, acc *types.Account, from, to string, uids []uint32) error {
	const op = "copy messages"
	if err := requireMessages(op, from, uids); err != nil {
		return err
	}
	if to == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "destination folder is required")
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		if _, err := c.Select(from, false); err != nil {
			return err
		}
		return c.Copy(uids, to)
	})
}

// DeleteMessages permanently removes uids
func (m *Manager) DeleteMessages(ctx context.Context, acc *types.Account, folder string, uids []uint32) error {
	const op = "delete messages"
	if err := requireMessages(op, folder, uids); err != nil {
		return err
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		if _, err := c.Select(folder, false); err != nil {
			return err
		}
		return m.expungeUIDs(c, uids)
	})
}

// MoveToTrash moves uids to the Trash folder, or deletes them when they
// already are in Trash or Spam.
func (m *Manager) MoveToTrash(ctx context.Context, acc *types.Account, folder string, uids []uint32) error {
	const op = "move to trash"
	if err := requireMessages(op, folder, uids); err != nil {
		return err
	}
	system, err := m.systemFolders(ctx, acc)
	if err != nil {
		return mailerr.Wrap(mailerr.KindProtocol, op, err)
	}
	trash := system[types.FolderTypeTrash]
	if trash == "" || folder == trash || folder == system[types.FolderTypeSpam] {
		return m.DeleteMessages(ctx, acc, folder, uids)
	}
	return m.MoveMessages(ctx, acc, folder, trash, uids)
}

// SetFlag adds or removes flag on uids. With skipNonPermanent, a flag the
// folder does not keep permanently is ignored without error.
func (m *Manager) SetFlag(ctx context.Context, acc *types.Account, folder string, uids []uint32, flag string, set, skipNonPermanent bool) error {
	const op = "set flag"
	if err := requireMessages(op, folder, uids); err != nil {
		return err
	}
	if flag == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "flag is required")
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		state, err := c.Select(folder, false)
		if err != nil {
			return err
		}
		if skipNonPermanent && !isPermanent(state.PermanentFlags, flag) {
			m.logger.WithFields(logrus.Fields{"folder": folder, "flag": flag}).Debug("Skipping non-permanent flag")
			return nil
		}
		return c.Store(uids, flagOp(set), []string{flag})
	})
}

// SetAllSeen marks every message of folder as seen or unseen
func (m *Manager) SetAllSeen(ctx context.Context, acc *types.Account, folder string, seen bool) error {
	const op = "set all seen"
	if folder == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "folder is required")
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		state, err := c.Select(folder, false)
		if err != nil {
			return err
		}
		if state.Messages == 0 {
			return nil
		}
		return c.StoreAll(flagOp(seen), []string{FlagSeen})
	})
}

func flagOp(set bool) FlagOp {
	if set {
		return FlagAdd
	}
	return FlagRemove
}

// isPermanent reports whether flag is in the PERMANENTFLAGS list, where \*
// allows any keyword.
func isPermanent(permanent []string, flag string) bool {
	for _, p := range permanent {
		if strings.EqualFold(p, flag) {
			return true
		}
		if p == `\*` && !strings.HasPrefix(flag, `\`) {
			return true
		}
	}
	return false
}

// AppendMessage stores a raw message in folder
func (m *Manager) AppendMessage(ctx context.Context, acc *types.Account, folder string, raw []byte, flags []string) error {
	const op = "append message"
	if folder == "" || len(raw) == 0 {
		return mailerr.New(mailerr.KindInvalidArgument, op, "folder and message are required")
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		return c.Append(folder, flags, time.Now(), raw)
	})
}

// ClearFolder deletes every message of the Trash or Spam folder
func (m *Manager) ClearFolder(ctx context.Context, acc *types.Account, folder string) error {
	const op = "clear folder"
	if folder == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "folder is required")
	}
	system, err := m.systemFolders(ctx, acc)
	if err != nil {
		return mailerr.Wrap(mailerr.KindProtocol, op, err)
	}
	allowed := []string{system[types.FolderTypeTrash], system[types.FolderTypeSpam]}
	if !slices.Contains(allowed, folder) {
		return mailerr.New(mailerr.KindInvalidArgument, op, "only Trash and Spam can be cleared")
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		state, err := c.Select(folder, false)
		if err != nil {
			return err
		}
		if state.Messages == 0 {
			return nil
		}
		if err := c.StoreAll(FlagAdd, []string{FlagDeleted}); err != nil {
			return err
		}
		return c.Expunge(nil)
	})
}

// systemFolders returns the persisted mapping, resolving it from a folder
// listing when none was saved yet.
func (m *Manager) systemFolders(ctx context.Context, acc *types.Account) (map[types.FolderType]string, error) {
	system, err := m.store.GetSystemFolders(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	if len(system) > 1 {
		return system, nil
	}
	if _, err := m.ListFolders(ctx, acc, false); err != nil {
		return nil, err
	}
	return m.store.GetSystemFolders(ctx, acc.ID)
}
