package email

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/storage"
	"github.com/brandon/mailcore/pkg/types"
)

// canonicalNames are the well-known names per type. A missing folder is
// created under the first one that is free.
var canonicalNames = map[types.FolderType][]string{
	types.FolderTypeDrafts: {"Drafts", "Draft"},
	types.FolderTypeSent:   {"Sent", "Sent Items", "Sent Mail", "Sent Messages"},
	types.FolderTypeSpam:   {"Spam", "Junk", "Junk Mail", "Junk E-mail", "Bulk Mail"},
	types.FolderTypeTrash:  {"Trash", "Bin", "Deleted", "Deleted Items", "Deleted Messages"},
}

// resolvableTypes are the types the resolver looks for, in the order
// missing folders get created.
var resolvableTypes = []types.FolderType{
	types.FolderTypeDrafts,
	types.FolderTypeSent,
	types.FolderTypeSpam,
	types.FolderTypeTrash,
}

var nameToType = func() map[string]types.FolderType {
	m := make(map[string]types.FolderType)
	for _, t := range resolvableTypes {
		for _, name := range canonicalNames[t] {
			m[strings.ToLower(name)] = t
		}
	}
	return m
}()

type folderResolver struct {
	store  storage.Store
	logger *logrus.Logger
}

// resolution is the outcome of one resolver pass.
type resolution struct {
	mapping map[types.FolderType]string
	missing map[types.FolderType]string
}

// resolve types the folders of coll in place. Types the persisted mapping
// does not cover are inferred from special-use attributes on every folder,
// then from well-known names on top-level folders only. It reports whether
// any missing folder was created.
func (r *folderResolver) resolve(ctx context.Context, acc *types.Account, coll *types.FolderCollection, createMissing bool, c Client) (bool, error) {
	persisted, err := r.store.GetSystemFolders(ctx, acc.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load system folders: %w", err)
	}

	res := classify(coll, persisted)

	created := false
	for _, t := range resolvableTypes {
		name, ok := res.missing[t]
		if !ok {
			continue
		}
		// Only folders that exist on the server are recorded.
		delete(res.mapping, t)
		if createMissing {
			logger := r.logger.WithFields(logrus.Fields{
				"account": acc.Email,
				"folder":  name,
				"type":    t.String(),
			})
			if err := c.CreateFolder(name); err != nil {
				logger.WithError(err).Warn("Failed to create system folder")
				continue
			}
			if err := c.Subscribe(name, true); err != nil {
				logger.WithError(err).Warn("Failed to subscribe system folder")
			}
			logger.Info("Created system folder")
			res.mapping[t] = name
			created = true
		}
	}

	if !mappingSaved(res.mapping, persisted) {
		if err := r.store.SetSystemFolders(ctx, acc.ID, res.mapping); err != nil {
			return created, fmt.Errorf("failed to save system folders: %w", err)
		}
	}
	return created, nil
}

// mappingSaved reports whether every entry of mapping is already persisted.
func mappingSaved(mapping, persisted map[types.FolderType]string) bool {
	for t, name := range mapping {
		if persisted[t] != name {
			return false
		}
	}
	return true
}

// classify assigns folder types and computes the mapping to persist. It has
// no side effects outside coll.
func classify(coll *types.FolderCollection, persisted map[types.FolderType]string) resolution {
	res := resolution{
		mapping: make(map[types.FolderType]string),
		missing: make(map[types.FolderType]string),
	}

	for f := range coll.All() {
		f.Type = types.FolderTypeCustom
		if f.IsInbox() {
			f.Type = types.FolderTypeInbox
			res.mapping[types.FolderTypeInbox] = f.FullNameRaw
		}
	}

	needed := make(map[types.FolderType]bool, len(resolvableTypes))
	for _, t := range resolvableTypes {
		needed[t] = true
	}
	taken := func(name string) bool {
		for _, v := range res.mapping {
			if v == name {
				return true
			}
		}
		return false
	}
	assign := func(f *types.Folder, t types.FolderType) {
		if !needed[t] || f.Type != types.FolderTypeCustom {
			return
		}
		f.Type = t
		needed[t] = false
		res.mapping[t] = f.FullNameRaw
	}
	markMissing := func(t types.FolderType, name string) bool {
		if taken(name) || coll.Find(name) != nil || strings.EqualFold(name, types.InboxName) {
			return false
		}
		needed[t] = false
		res.missing[t] = name
		res.mapping[t] = name
		return true
	}

	for _, t := range resolvableTypes {
		name, ok := persisted[t]
		if !ok || name == "" {
			continue
		}
		if f := coll.Find(name); f != nil {
			assign(f, t)
			continue
		}
		markMissing(t, name)
	}

	for f := range coll.All() {
		if t := f.SpecialUse(); t != types.FolderTypeInbox {
			assign(f, t)
		}
	}

	for f := range heuristicCandidates(coll) {
		if t, ok := nameToType[strings.ToLower(f.Name)]; ok {
			assign(f, t)
		}
	}

	for _, t := range resolvableTypes {
		if !needed[t] {
			continue
		}
		for _, name := range canonicalNames[t] {
			if markMissing(t, coll.Namespace+name) {
				break
			}
		}
	}
	return res
}

// heuristicCandidates yields the top-level folders. With an INBOX
// namespace the children of INBOX are top level too.
func heuristicCandidates(coll *types.FolderCollection) iter.Seq[*types.Folder] {
	return func(yield func(*types.Folder) bool) {
		for f := range coll.Roots() {
			if !yield(f) {
				return
			}
			if coll.Namespace != "" && f.IsInbox() {
				for child := range f.SubFolders.Roots() {
					if !yield(child) {
						return
					}
				}
			}
		}
	}
}
