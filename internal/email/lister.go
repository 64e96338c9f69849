package email

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/mailerr"
	"github.com/brandon/mailcore/internal/search"
	"github.com/brandon/mailcore/internal/thread"
	"github.com/brandon/mailcore/pkg/types"
)

const (
	// MaxPageSize is the largest accepted list limit.
	MaxPageSize = 999
	// structureChunk bounds the UIDs per structure-scan FETCH.
	structureChunk = 100
)

// listPlan is the ordered identifier list one listing path produced.
type listPlan struct {
	ids         []uint32
	byUID       bool
	resultCount int
	threads     map[uint32][]uint32
	path        string
}

// ListMessages assembles one page of a folder listing
func (m *Manager) ListMessages(ctx context.Context, acc *types.Account, req types.MessageListRequest) (*types.MessageList, error) {
	const op = "list messages"
	if err := validateListRequest(req); err != nil {
		return nil, mailerr.Wrap(mailerr.KindInvalidArgument, op, err)
	}

	var list *types.MessageList
	err := m.withSession(ctx, acc, op, func(c Client) error {
		var err error
		list, err = m.listMessages(acc, c, req)
		return err
	})
	return list, err
}

func validateListRequest(req types.MessageListRequest) error {
	switch {
	case strings.TrimSpace(req.Folder) == "":
		return errors.New("folder is required")
	case req.Limit <= 0 || req.Limit > MaxPageSize:
		return errors.New("limit must be between 1 and 999")
	case req.Offset < 0:
		return errors.New("offset must not be negative")
	}
	return nil
}

func (m *Manager) listMessages(acc *types.Account, c Client, req types.MessageListRequest) (*types.MessageList, error) {
	status, err := c.Status(req.Folder)
	if err != nil {
		return nil, err
	}
	if _, err := c.Select(req.Folder, true); err != nil {
		return nil, err
	}

	list := &types.MessageList{
		Folder:             req.Folder,
		Offset:             req.Offset,
		Limit:              req.Limit,
		Search:             req.Search,
		Filters:            req.Filters,
		MessageCount:       status.Messages,
		MessageUnseenCount: status.Unseen,
		UIDNext:            status.UIDNext,
		FolderHash:         types.FolderHash(req.Folder, status.Messages, status.Unseen, status.UIDNext),
		UIDs:               []uint32{},
		Messages:           []*types.MessageSummary{},
	}

	if status.Messages > 0 {
		plan, err := m.plan(acc, c, req, status.Messages)
		if err != nil {
			return nil, err
		}
		list.MessageResultCount = plan.resultCount

		page := pageOf(plan.ids, req.Offset, req.Limit)
		summaries, err := fetchPage(c, req.Folder, page, plan)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			list.UIDs = append(list.UIDs, s.UID)
		}
		list.Messages = summaries

		m.logger.WithFields(logrus.Fields{
			"account": acc.Email,
			"folder":  req.Folder,
			"path":    plan.path,
			"count":   plan.resultCount,
		}).Debug("Listed messages")
	}

	if strings.EqualFold(req.Folder, types.InboxName) {
		fresh, err := newMessages(c, req.Folder, req.InboxUIDNext, status.UIDNext)
		if err != nil {
			return nil, err
		}
		list.New = fresh
	}
	return list, nil
}

// plan picks the listing path: search, thread, sort, then plain sequence
// numbers newest first.
func (m *Manager) plan(acc *types.Account, c Client, req types.MessageListRequest, count uint32) (*listPlan, error) {
	canSort := m.opts.UseSort && c.IsSupported(CapSort)

	if strings.TrimSpace(req.Search) != "" || len(req.Filters) > 0 {
		uids, err := m.searchUIDs(c, req, canSort)
		if err != nil {
			return nil, err
		}
		return &listPlan{ids: uids, byUID: true, resultCount: len(uids), path: "search"}, nil
	}

	canThread := c.IsSupported(CapThreadReferences) || c.IsSupported(CapThreadSubject)
	if req.UseThreads && m.opts.UseThreads && acc.UseThreading && canThread && count > 1 {
		roots, err := c.Thread()
		if err != nil {
			return nil, err
		}
		groups := thread.Compile(roots)
		if canSort {
			arrival, err := c.Sort("", "")
			if err != nil {
				return nil, err
			}
			groups = thread.Reorder(groups, arrival)
		} else {
			groups = thread.Chunk(groups, thread.MaxGroupSize)
		}
		children := make(map[uint32][]uint32, len(groups))
		for _, g := range groups {
			if len(g.Children) > 0 {
				children[g.Key] = g.Children
			}
		}
		return &listPlan{
			ids:         thread.Keys(groups),
			byUID:       true,
			resultCount: len(groups),
			threads:     children,
			path:        "thread",
		}, nil
	}

	if canSort && count > 1 {
		uids, err := c.Sort("", "")
		if err != nil {
			return nil, err
		}
		return &listPlan{ids: uids, byUID: true, resultCount: int(count), path: "sort"}, nil
	}

	ids := make([]uint32, 0, count)
	for i := count; i >= 1; i-- {
		ids = append(ids, i)
	}
	return &listPlan{ids: ids, resultCount: int(count), path: "sequence"}, nil
}

// searchUIDs runs the compiled query, newest first, and applies any
// structure predicate.
func (m *Manager) searchUIDs(c Client, req types.MessageListRequest, canSort bool) ([]uint32, error) {
	loc := m.opts.Location
	if req.TimezoneOffsetMinutes != nil {
		loc = time.FixedZone("", *req.TimezoneOffsetMinutes*60)
	}
	compiler := search.Compiler{
		Gmail:             c.IsSupported(CapGmail),
		Location:          loc,
		UseBodyStructures: m.opts.UseBodyStructures,
	}
	query := compiler.Compile(req.Search, req.Filters)

	var (
		uids []uint32
		err  error
	)
	if canSort {
		uids, err = retryCharset(func(charset string) ([]uint32, error) {
			return c.Sort(query.Criteria, charset)
		})
	} else {
		uids, err = retryCharset(func(charset string) ([]uint32, error) {
			return c.Search(query.Criteria, charset)
		})
		slices.SortFunc(uids, func(a, b uint32) int { return cmp.Compare(b, a) })
	}
	if err != nil {
		return nil, err
	}

	if filter := query.Filter(); filter != nil && len(uids) > 0 {
		return scanStructures(c, uids, filter)
	}
	return uids, nil
}

// retryCharset tries UTF-8 first and the server default on rejection.
func retryCharset(run func(charset string) ([]uint32, error)) ([]uint32, error) {
	uids, err := run("UTF-8")
	if errors.Is(err, ErrBadCharset) {
		return run("")
	}
	return uids, err
}

// scanStructures keeps the UIDs whose body structure passes filter,
// preserving input order.
func scanStructures(c Client, uids []uint32, filter search.StructureFilter) ([]uint32, error) {
	pass := make(map[uint32]bool, len(uids))
	for chunk := range slices.Chunk(uids, structureChunk) {
		msgs, err := c.Fetch(chunk, true, structureItems)
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			if filter(msg.Structure) {
				pass[msg.UID] = true
			}
		}
	}
	out := make([]uint32, 0, len(pass))
	for _, uid := range uids {
		if pass[uid] {
			out = append(out, uid)
		}
	}
	return out, nil
}

func pageOf(ids []uint32, offset, limit int) []uint32 {
	if offset >= len(ids) {
		return nil
	}
	end := min(offset+limit, len(ids))
	return ids[offset:end]
}

// fetchPage fetches one page in a single FETCH and restores the page order.
func fetchPage(c Client, folder string, page []uint32, plan *listPlan) ([]*types.MessageSummary, error) {
	if len(page) == 0 {
		return []*types.MessageSummary{}, nil
	}
	msgs, err := c.Fetch(page, plan.byUID, summaryItems)
	if err != nil {
		return nil, err
	}

	rank := make(map[uint32]int, len(page))
	for i, id := range page {
		rank[id] = i
	}
	key := func(m *FetchedMessage) uint32 {
		if plan.byUID {
			return m.UID
		}
		return m.SeqNum
	}
	msgs = slices.DeleteFunc(msgs, func(m *FetchedMessage) bool {
		_, ok := rank[key(m)]
		return !ok
	})
	slices.SortStableFunc(msgs, func(a, b *FetchedMessage) int {
		return cmp.Compare(rank[key(a)], rank[key(b)])
	})

	summaries := make([]*types.MessageSummary, len(msgs))
	for i, msg := range msgs {
		s := toSummary(folder, msg)
		if plan.threads != nil {
			s.Threads = plan.threads[msg.UID]
		}
		summaries[i] = s
	}
	return summaries, nil
}

func toSummary(folder string, msg *FetchedMessage) *types.MessageSummary {
	return &types.MessageSummary{
		Folder:       folder,
		UID:          msg.UID,
		Index:        msg.SeqNum,
		Size:         msg.Size,
		InternalDate: msg.InternalDate,
		Flags:        msg.Flags,
		From:         msg.From,
		Subject:      msg.Subject,
		ContentType:  msg.ContentType,
	}
}

// newMessages returns unseen messages with lastKnown < UID < current.
func newMessages(c Client, folder string, lastKnown, current uint32) ([]*types.NewMessage, error) {
	if lastKnown == 0 || current <= lastKnown || current-lastKnown < 2 {
		return nil, nil
	}
	msgs, err := c.FetchUIDRange(lastKnown+1, newMailItems)
	if err != nil {
		return nil, err
	}
	var fresh []*types.NewMessage
	for _, msg := range msgs {
		if msg.UID <= lastKnown || msg.UID >= current || msg.HasFlag(`\Seen`) {
			continue
		}
		fresh = append(fresh, &types.NewMessage{
			Folder:  folder,
			UID:     msg.UID,
			Subject: msg.Subject,
			From:    msg.From,
		})
	}
	return fresh, nil
}

// GetMessages fetches summaries for uids in the requested order
func (m *Manager) GetMessages(ctx context.Context, acc *types.Account, folder string, uids []uint32) ([]*types.MessageSummary, error) {
	const op = "get messages"
	if folder == "" || len(uids) == 0 {
		return nil, mailerr.New(mailerr.KindInvalidArgument, op, "folder and uids are required")
	}
	var summaries []*types.MessageSummary
	err := m.withSession(ctx, acc, op, func(c Client) error {
		if _, err := c.Select(folder, true); err != nil {
			return err
		}
		var err error
		summaries, err = fetchPage(c, folder, uids, &listPlan{byUID: true})
		return err
	})
	return summaries, err
}
