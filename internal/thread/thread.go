// Package thread flattens IMAP THREAD responses into list-view groups.
package thread

import (
	"cmp"
	"slices"
)

// MaxGroupSize bounds the members of one group.
const MaxGroupSize = 200

// Node is one message of a THREAD response tree.
type Node struct {
	UID      uint32
	Children []*Node
}

// Group is one top-level list entry: the newest message of a conversation
// and the rest of its members, newest first.
type Group struct {
	Key      uint32
	Children []uint32
}

// Members returns the key followed by the children.
func (g Group) Members() []uint32 {
	return append([]uint32{g.Key}, g.Children...)
}

// Len is the number of messages in the group.
func (g Group) Len() int {
	return 1 + len(g.Children)
}

// Compile flattens each top-level tree into a group keyed by its highest
// UID. Groups are ordered by key, highest first.
func Compile(roots []*Node) []Group {
	groups := make([]Group, 0, len(roots))
	for _, root := range roots {
		uids := collect(root, nil)
		if len(uids) == 0 {
			continue
		}
		slices.Sort(uids)
		uids = slices.Compact(uids)

		last := len(uids) - 1
		var children []uint32
		if last > 0 {
			children = slices.Clone(uids[:last])
			slices.Reverse(children)
		}
		groups = append(groups, Group{Key: uids[last], Children: children})
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		return cmp.Compare(b.Key, a.Key)
	})
	return groups
}

func collect(n *Node, into []uint32) []uint32 {
	if n == nil {
		return into
	}
	// Dummy parents of a THREAD response carry UID 0.
	if n.UID != 0 {
		into = append(into, n.UID)
	}
	for _, c := range n.Children {
		into = collect(c, into)
	}
	return into
}

// Reorder ranks groups by the arrival order of their members: a group
// takes the position of its earliest member in arrival. Members missing
// from arrival rank after every listed one. Groups are then split by
// Chunk.
func Reorder(groups []Group, arrival []uint32) []Group {
	rank := make(map[uint32]int, len(arrival))
	for i, uid := range arrival {
		if _, seen := rank[uid]; !seen {
			rank[uid] = i
		}
	}

	type ranked struct {
		group Group
		rank  int
	}
	items := make([]ranked, len(groups))
	for i, g := range groups {
		best := len(arrival)
		for _, uid := range g.Members() {
			if r, ok := rank[uid]; ok && r < best {
				best = r
			}
		}
		items[i] = ranked{group: g, rank: best}
	}
	slices.SortStableFunc(items, func(a, b ranked) int {
		return cmp.Compare(a.rank, b.rank)
	})

	out := make([]Group, len(items))
	for i, it := range items {
		out[i] = it.group
	}
	return Chunk(out, MaxGroupSize)
}

// Chunk splits every group larger than size into consecutive groups of at
// most size members. Each later chunk is keyed by its own first member.
func Chunk(groups []Group, size int) []Group {
	if size < 1 {
		size = MaxGroupSize
	}
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.Len() <= size {
			out = append(out, g)
			continue
		}
		for part := range slices.Chunk(g.Members(), size) {
			g := Group{Key: part[0]}
			if len(part) > 1 {
				g.Children = slices.Clone(part[1:])
			}
			out = append(out, g)
		}
	}
	return out
}

// Keys returns the group keys in order.
func Keys(groups []Group) []uint32 {
	keys := make([]uint32, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}
