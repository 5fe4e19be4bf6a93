package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadersGetCopies(t *testing.T) {
	st := NewStore()
	st.Prepend(Session{ID: "a", Title: DefaultTitle})
	_, ok := st.Append("a", Message{ID: "m1", Role: RoleUser, Content: "问", Attachments: []Attachment{{Token: "t1"}}})
	require.True(t, ok)

	got, _ := st.Get("a")
	got.Messages[0].Content = "changed"
	got.Messages[0].Attachments[0].Token = "changed"

	again, _ := st.Get("a")
	assert.Equal(t, "问", again.Messages[0].Content)
	assert.Equal(t, "t1", again.Messages[0].Attachments[0].Token)
}

func TestStore_PrependOrder(t *testing.T) {
	st := NewStore()
	st.Prepend(Session{ID: "a"})
	st.Prepend(Session{ID: "b"})
	st.Prepend(Session{ID: "a", Title: "更新"})

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "更新", list[1].Title)
}

func TestStore_CommitBumpsGeneration(t *testing.T) {
	st := NewStore()
	st.Prepend(Session{ID: "a"})

	s, gen1, ok := st.Commit("a", Message{ID: "m1", Role: RoleUser, Content: "一"})
	require.True(t, ok)
	assert.True(t, s.Loading)
	assert.Len(t, s.Messages, 1)

	_, gen2, _ := st.Commit("a", Message{ID: "m2", Role: RoleUser, Content: "二"})
	assert.Greater(t, gen2, gen1)

	_, ok = st.UpdateIfCurrent("a", gen1, func(s *Session) { s.Loading = false })
	assert.False(t, ok, "older send is stale")
	s, ok = st.UpdateIfCurrent("a", gen2, func(s *Session) { s.Loading = false })
	require.True(t, ok)
	assert.False(t, s.Loading)

	_, _, ok = st.Commit("missing", Message{})
	assert.False(t, ok)
}

func TestStore_DeleteMovesActive(t *testing.T) {
	st := NewStore()
	st.Prepend(Session{ID: "a"})
	st.Prepend(Session{ID: "b"})
	st.Prepend(Session{ID: "c"})
	require.True(t, st.SetActive("c"))

	require.True(t, st.Delete("c"))
	assert.Equal(t, "b", st.ActiveID())

	require.True(t, st.Delete("a"))
	assert.Equal(t, "b", st.ActiveID(), "deleting an inactive session keeps the active one")

	require.True(t, st.Delete("b"))
	assert.Empty(t, st.ActiveID())
	assert.False(t, st.Delete("b"))
	assert.False(t, st.SetActive("zzz"))
}

func TestStore_ReplaceAllKeepsLocalState(t *testing.T) {
	st := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st.Prepend(Session{ID: "kept", Title: "借款纠纷", CreatedAt: base})
	st.Append("kept", Message{ID: "m1", Role: RoleUser, Content: "问"})
	st.Prepend(Session{ID: "placeholder", Title: DefaultTitle, CreatedAt: base})
	st.Prepend(Session{ID: "gone", CreatedAt: base})
	st.SetActive("gone")

	st.ReplaceAll([]Session{
		{ID: "kept", Title: "远端标题", CreatedAt: base.Add(time.Hour)},
		{ID: "placeholder", Title: "远端新标题", CreatedAt: base.Add(3 * time.Hour)},
		{ID: "fresh", Title: "新会话", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "fresh", Title: "dup", CreatedAt: base},
	})

	list := st.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"placeholder", "fresh", "kept"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "远端新标题", list[0].Title)
	assert.Equal(t, "新会话", list[1].Title)
	assert.Equal(t, "借款纠纷", list[2].Title)
	assert.Len(t, list[2].Messages, 1)

	_, ok := st.Get("gone")
	assert.False(t, ok)
	assert.Empty(t, st.ActiveID())
}
