package email

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/pkg/types"
)

// ListFolders returns the account's folder tree with system folders typed
// and the display order applied. When createMissing is set, missing system
// folders are created and the tree is listed once more.
func (m *Manager) ListFolders(ctx context.Context, acc *types.Account, createMissing bool) (*types.FolderCollection, error) {
	var coll *types.FolderCollection
	err := m.withSession(ctx, acc, "list folders", func(c Client) error {
		var err error
		coll, err = m.listFolders(ctx, acc, c, createMissing)
		return err
	})
	return coll, err
}

func (m *Manager) listFolders(ctx context.Context, acc *types.Account, c Client, createMissing bool) (*types.FolderCollection, error) {
	coll, err := fetchTree(c)
	if err != nil {
		return nil, err
	}
	created, err := m.folders.resolve(ctx, acc, coll, createMissing, c)
	if err != nil {
		return nil, err
	}
	if created {
		if coll, err = fetchTree(c); err != nil {
			return nil, err
		}
		if _, err := m.folders.resolve(ctx, acc, coll, false, c); err != nil {
			return nil, err
		}
	}
	if err := m.orderFolders(ctx, acc, coll); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"account": acc.Email,
		"count":   len(coll.FullNames()),
		"created": created,
	}).Debug("Listed folders")
	return coll, nil
}

func fetchTree(c Client) (*types.FolderCollection, error) {
	all, err := c.ListFolders()
	if err != nil {
		return nil, err
	}
	subscribed, err := c.ListSubscribed()
	if err != nil {
		return nil, err
	}
	subs := make(map[string]bool, len(subscribed))
	for _, f := range subscribed {
		subs[f.Name] = true
	}
	return assembleTree(all, subs), nil
}

// assembleTree nests folders under their nearest listed ancestor, keeping
// the provider's order on each level.
func assembleTree(all []RawFolder, subscribed map[string]bool) *types.FolderCollection {
	coll := &types.FolderCollection{}
	byName := make(map[string]*types.Folder, len(all))
	folders := make([]*types.Folder, 0, len(all))

	for _, rf := range all {
		raw := rf.Name
		if strings.EqualFold(raw, types.InboxName) {
			raw = types.InboxName
		}
		if _, dup := byName[raw]; dup || raw == "" {
			continue
		}
		f := &types.Folder{
			FullNameRaw: raw,
			FullName:    decodeName(raw),
			Delimiter:   rf.Delimiter,
			Attributes:  rf.Attributes,
		}
		f.Name = lastSegment(f.FullName, f.Delimiter)
		f.Subscribed = subscribed[rf.Name] || f.HasAttribute(`\Subscribed`)
		f.Selectable = !f.HasAttribute(`\Noselect`) && !f.HasAttribute(`\NonExistent`)

		byName[raw] = f
		folders = append(folders, f)
		if coll.Delimiter == "" {
			coll.Delimiter = rf.Delimiter
		}
	}
	coll.Namespace = detectNamespace(folders)

	for _, f := range folders {
		parent := findParent(byName, f)
		if parent == nil {
			coll.Folders = append(coll.Folders, f)
			continue
		}
		if parent.SubFolders == nil {
			parent.SubFolders = &types.FolderCollection{Delimiter: f.Delimiter}
		}
		parent.SubFolders.Folders = append(parent.SubFolders.Folders, f)
	}
	return coll
}

func lastSegment(name, delim string) string {
	if delim == "" {
		return name
	}
	if i := strings.LastIndex(name, delim); i >= 0 {
		return name[i+len(delim):]
	}
	return name
}

func findParent(byName map[string]*types.Folder, f *types.Folder) *types.Folder {
	if f.Delimiter == "" {
		return nil
	}
	name := f.FullNameRaw
	for {
		i := strings.LastIndex(name, f.Delimiter)
		if i <= 0 {
			return nil
		}
		name = name[:i]
		if p, ok := byName[name]; ok {
			return p
		}
	}
}

// detectNamespace returns "INBOX"+delimiter when every other folder lives
// under INBOX, as on servers with an INBOX personal namespace.
func detectNamespace(folders []*types.Folder) string {
	var prefix string
	others := 0
	for _, f := range folders {
		if f.IsInbox() {
			if f.Delimiter == "" {
				return ""
			}
			prefix = types.InboxName + f.Delimiter
		}
	}
	if prefix == "" {
		return ""
	}
	for _, f := range folders {
		if f.IsInbox() {
			continue
		}
		if !strings.HasPrefix(f.FullNameRaw, prefix) {
			return ""
		}
		others++
	}
	if others == 0 {
		return ""
	}
	return prefix
}

// orderFolders sorts every level of coll. Without a persisted order the
// computed one is saved.
func (m *Manager) orderFolders(ctx context.Context, acc *types.Account, coll *types.FolderCollection) error {
	order, err := m.store.GetFoldersOrder(ctx, acc.ID)
	if err != nil {
		return fmt.Errorf("failed to load folders order: %w", err)
	}
	sortFolders(coll, order)
	if len(order) == 0 {
		order = coll.FullNames()
		if err := m.store.SetFoldersOrder(ctx, acc.ID, order); err != nil {
			return fmt.Errorf("failed to save folders order: %w", err)
		}
	}
	acc.FoldersOrder = order
	return nil
}

// sortFolders orders each level by folder type, or by position in order
// when one is given. Folders missing from order come last, in natural
// case-insensitive order of their display names.
func sortFolders(coll *types.FolderCollection, order []string) {
	if coll == nil {
		return
	}
	if len(order) == 0 {
		slices.SortStableFunc(coll.Folders, func(a, b *types.Folder) int {
			return cmp.Compare(a.Type.SortRank(), b.Type.SortRank())
		})
	} else {
		pos := make(map[string]int, len(order))
		for i, name := range order {
			if _, dup := pos[name]; !dup {
				pos[name] = i
			}
		}
		col := collate.New(language.Und, collate.IgnoreCase, collate.Numeric)
		slices.SortStableFunc(coll.Folders, func(a, b *types.Folder) int {
			pa, okA := pos[a.FullNameRaw]
			pb, okB := pos[b.FullNameRaw]
			switch {
			case okA && okB:
				return cmp.Compare(pa, pb)
			case okA:
				return -1
			case okB:
				return 1
			}
			return col.CompareString(a.FullName, b.FullName)
		})
	}
	for _, f := range coll.Folders {
		sortFolders(f.SubFolders, order)
	}
}

// UpdateFoldersOrder persists a new display order
func (m *Manager) UpdateFoldersOrder(ctx context.Context, acc *types.Account, order []string) error {
	const op = "update folders order"
	for _, name := range order {
		if strings.TrimSpace(name) == "" {
			return mailerr.New(mailerr.KindInvalidArgument, op, "empty folder name in order")
		}
	}
	if err := m.store.SetFoldersOrder(ctx, acc.ID, order); err != nil {
		return mailerr.Wrap(mailerr.KindProtocol, op, err)
	}
	acc.FoldersOrder = slices.Clone(order)
	return nil
}

// CreateFolder creates name under parent (raw, empty for top level) and
// returns the new raw name.
func (m *Manager) CreateFolder(ctx context.Context, acc *types.Account, parent, name string, subscribe bool) (string, error) {
	const op = "create folder"
	name = strings.TrimSpace(name)
	if name == "" {
		return "", mailerr.New(mailerr.KindInvalidArgument, op, "folder name is required")
	}

	var raw string
	err := m.withSession(ctx, acc, op, func(c Client) error {
		delim, err := c.Delimiter()
		if err != nil {
			return err
		}
		if delim != "" && strings.Contains(name, delim) {
			return mailerr.New(mailerr.KindInvalidArgument, op, "folder name must not contain %q", delim)
		}
		raw = encodeName(name)
		if parent != "" {
			raw = parent + delim + raw
		}
		if err := c.CreateFolder(raw); err != nil {
			return err
		}
		if subscribe {
			return c.Subscribe(raw, true)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	m.logger.WithFields(logrus.Fields{"account": acc.Email, "folder": raw}).Info("Created folder")
	return raw, nil
}

// DeleteFolder unsubscribes and deletes a folder
func (m *Manager) DeleteFolder(ctx context.Context, acc *types.Account, raw string) error {
	const op = "delete folder"
	if raw == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "folder name is required")
	}
	if strings.EqualFold(raw, types.InboxName) {
		return mailerr.New(mailerr.KindInvalidArgument, op, "INBOX cannot be deleted")
	}
	err := m.withSession(ctx, acc, op, func(c Client) error {
		if err := c.Subscribe(raw, false); err != nil {
			m.logger.WithError(err).WithField("folder", raw).Debug("Unsubscribe before delete failed")
		}
		return c.DeleteFolder(raw)
	})
	if err != nil {
		return err
	}

	order, err := m.store.GetFoldersOrder(ctx, acc.ID)
	if err != nil {
		return mailerr.Wrap(mailerr.KindProtocol, op, err)
	}
	if i := slices.Index(order, raw); i >= 0 {
		order = slices.Delete(order, i, i+1)
		if err := m.store.SetFoldersOrder(ctx, acc.ID, order); err != nil {
			return mailerr.Wrap(mailerr.KindProtocol, op, err)
		}
		acc.FoldersOrder = order
	}
	return nil
}

// SubscribeFolder changes the subscription of a folder
func (m *Manager) SubscribeFolder(ctx context.Context, acc *types.Account, raw string, subscribe bool) error {
	const op = "subscribe folder"
	if raw == "" {
		return mailerr.New(mailerr.KindInvalidArgument, op, "folder name is required")
	}
	return m.withSession(ctx, acc, op, func(c Client) error {
		return c.Subscribe(raw, subscribe)
	})
}

// RenameFolder gives a folder a new leaf name under the same parent and
// returns the new raw name. The persisted order and system folder mapping
// follow the rename, children included.
func (m *Manager) RenameFolder(ctx context.Context, acc *types.Account, from, newName string) (string, error) {
	const op = "rename folder"
	newName = strings.TrimSpace(newName)
	if from == "" || newName == "" {
		return "", mailerr.New(mailerr.KindInvalidArgument, op, "folder and new name are required")
	}
	if strings.EqualFold(from, types.InboxName) {
		return "", mailerr.New(mailerr.KindInvalidArgument, op, "INBOX cannot be renamed")
	}

	var to, delim string
	err := m.withSession(ctx, acc, op, func(c Client) error {
		var err error
		if delim, err = c.Delimiter(); err != nil {
			return err
		}
		if delim != "" && strings.Contains(newName, delim) {
			return mailerr.New(mailerr.KindInvalidArgument, op, "folder name must not contain %q", delim)
		}
		to = encodeName(newName)
		if delim != "" {
			if i := strings.LastIndex(from, delim); i >= 0 {
				to = from[:i+len(delim)] + to
			}
		}
		if to == from {
			return nil
		}
		if err := c.RenameFolder(from, to); err != nil {
			return err
		}
		if err := c.Subscribe(from, false); err != nil {
			m.logger.WithError(err).WithField("folder", from).Debug("Unsubscribe of old name failed")
		}
		if err := c.Subscribe(to, true); err != nil {
			m.logger.WithError(err).WithField("folder", to).Warn("Failed to subscribe renamed folder")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if to == from {
		return to, nil
	}

	if err := m.patchRename(ctx, acc, from, to, delim); err != nil {
		return to, mailerr.Wrap(mailerr.KindProtocol, op, err)
	}
	m.logger.WithFields(logrus.Fields{
		"account": acc.Email,
		"folder":  from,
		"path":    to,
	}).Info("Renamed folder")
	return to, nil
}

func (m *Manager) patchRename(ctx context.Context, acc *types.Account, from, to, delim string) error {
	order, err := m.store.GetFoldersOrder(ctx, acc.ID)
	if err != nil {
		return err
	}
	if patched, changed := renameInList(order, from, to, delim); changed {
		if err := m.store.SetFoldersOrder(ctx, acc.ID, patched); err != nil {
			return err
		}
		acc.FoldersOrder = patched
	}

	system, err := m.store.GetSystemFolders(ctx, acc.ID)
	if err != nil {
		return err
	}
	changed := false
	for t, name := range system {
		if renamed, ok := renamePath(name, from, to, delim); ok {
			system[t] = renamed
			changed = true
		}
	}
	if changed {
		return m.store.SetSystemFolders(ctx, acc.ID, system)
	}
	return nil
}

// renameInList substitutes from with to in place, descendants included.
func renameInList(names []string, from, to, delim string) ([]string, bool) {
	out := slices.Clone(names)
	changed := false
	for i, name := range out {
		if renamed, ok := renamePath(name, from, to, delim); ok {
			out[i] = renamed
			changed = true
		}
	}
	return out, changed
}

func renamePath(name, from, to, delim string) (string, bool) {
	if name == from {
		return to, true
	}
	if delim != "" && strings.HasPrefix(name, from+delim) {
		return to + name[len(from):], true
	}
	return name, false
}

// FolderStatus returns the live counters of one folder
func (m *Manager) FolderStatus(ctx context.Context, acc *types.Account, raw string) (*types.FolderStatus, error) {
	const op = "folder status"
	if raw == "" {
		return nil, mailerr.New(mailerr.KindInvalidArgument, op, "folder name is required")
	}
	var status *types.FolderStatus
	err := m.withSession(ctx, acc, op, func(c Client) error {
		st, err := c.Status(raw)
		if err != nil {
			return err
		}
		status = types.NewFolderStatus(raw, st.Messages, st.Unseen, st.UIDNext)
		return nil
	})
	return status, err
}

// FolderCounts returns the status of each named folder. Folders the server
// refuses are left out.
func (m *Manager) FolderCounts(ctx context.Context, acc *types.Account, names []string) (map[string]*types.FolderStatus, error) {
	counts := make(map[string]*types.FolderStatus, len(names))
	err := m.withSession(ctx, acc, "folder counts", func(c Client) error {
		for _, name := range names {
			st, err := c.Status(name)
			if err != nil {
				m.logger.WithError(err).WithField("folder", name).Debug("Skipping folder status")
				continue
			}
			counts[name] = types.NewFolderStatus(name, st.Messages, st.Unseen, st.UIDNext)
		}
		return nil
	})
	return counts, err
}

// ApplyStatus attaches counts to the matching folders of coll.
func ApplyStatus(coll *types.FolderCollection, counts map[string]*types.FolderStatus) {
	for f := range coll.All() {
		if st, ok := counts[f.FullNameRaw]; ok {
			f.Status = st
		}
	}
}
