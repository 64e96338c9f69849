package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *FolderCollection {
	return &FolderCollection{
		Delimiter: "/",
		Folders: []*Folder{
			{FullNameRaw: "INBOX", Type: FolderTypeInbox, SubFolders: &FolderCollection{
				Folders: []*Folder{{FullNameRaw: "INBOX/Receipts"}},
			}},
			{FullNameRaw: "Trash", Type: FolderTypeTrash},
			{FullNameRaw: "Work", SubFolders: &FolderCollection{
				Folders: []*Folder{
					{FullNameRaw: "Work/2024", SubFolders: &FolderCollection{
						Folders: []*Folder{{FullNameRaw: "Work/2024/Q1"}},
					}},
				},
			}},
		},
	}
}

func TestFolderCollection_Traversal(t *testing.T) {
	c := sampleTree()

	assert.Equal(t, []string{"INBOX", "INBOX/Receipts", "Trash", "Work", "Work/2024", "Work/2024/Q1"}, c.FullNames())

	var roots []string
	for f := range c.Roots() {
		roots = append(roots, f.FullNameRaw)
	}
	assert.Equal(t, []string{"INBOX", "Trash", "Work"}, roots)

	var first []string
	for f := range c.All() {
		first = append(first, f.FullNameRaw)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"INBOX", "INBOX/Receipts"}, first)

	require.NotNil(t, c.Find("Work/2024/Q1"))
	assert.Nil(t, c.Find("work/2024/q1"))
	assert.Equal(t, "Trash", c.FindByType(FolderTypeTrash).FullNameRaw)
	assert.Nil(t, c.FindByType(FolderTypeSpam))

	var empty *FolderCollection
	assert.Equal(t, 0, empty.Len())
	assert.Empty(t, empty.FullNames())
}

func TestFolder_SpecialUse(t *testing.T) {
	tests := []struct {
		attrs []string
		want  FolderType
	}{
		{[]string{`\HasNoChildren`, `\Sent`}, FolderTypeSent},
		{[]string{`\Junk`}, FolderTypeSpam},
		{[]string{`\Spam`}, FolderTypeSpam},
		{[]string{`\TRASH`}, FolderTypeTrash},
		{[]string{`\Inbox`}, FolderTypeInbox},
		{[]string{`\All`}, FolderTypeCustom},
		{nil, FolderTypeCustom},
	}
	for _, tt := range tests {
		f := &Folder{Attributes: tt.attrs}
		assert.Equal(t, tt.want, f.SpecialUse(), "%v", tt.attrs)
	}
}

func TestFolder_Visible(t *testing.T) {
	assert.True(t, (&Folder{FullNameRaw: "inbox"}).Visible())
	assert.True(t, (&Folder{FullNameRaw: "Work", Subscribed: true}).Visible())
	assert.False(t, (&Folder{FullNameRaw: "Work"}).Visible())
}

func TestFolderType(t *testing.T) {
	for _, ft := range append(SystemFolderTypes, FolderTypeCustom) {
		parsed, err := ParseFolderType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
	}
	_, err := ParseFolderType("archive")
	assert.Error(t, err)

	assert.Less(t, FolderTypeInbox.SortRank(), FolderTypeTrash.SortRank())
	assert.Equal(t, len(SystemFolderTypes), FolderTypeCustom.SortRank())
	assert.False(t, FolderTypeCustom.IsSystem())
}

func TestNewFolderStatus(t *testing.T) {
	st := NewFolderStatus("INBOX", 10, 2, 55)
	assert.Equal(t, FolderHash("INBOX", 10, 2, 55), st.Hash)
	assert.Len(t, st.Hash, 16)
	assert.NotEqual(t, st.Hash, FolderHash("INBOX", 10, 3, 55))
}
