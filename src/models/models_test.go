package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReplyClone(t *testing.T) {
	parent := 1
	edited := time.Now()
	r := Reply{ID: 2, ParentID: &parent, EditedAt: &edited, Content: "hello"}

	c := r.Clone()
	assert.Equal(t, r, c)

	*c.ParentID = 99
	*c.EditedAt = edited.Add(time.Hour)
	assert.Equal(t, 1, *r.ParentID)
	assert.Equal(t, edited, *r.EditedAt)
}

func TestCachedTreeReplies(t *testing.T) {
	parent := 1
	tree := NewCachedTree(7, 3, []Reply{
		{ID: 1, TopicID: 7, Content: "root"},
		{ID: 2, TopicID: 7, ParentID: &parent, Depth: 1, Content: "child"},
	})

	first := tree.Replies()
	first[0].Content = "changed"
	*first[1].ParentID = 42

	second := tree.Replies()
	assert.Equal(t, "root", second[0].Content)
	assert.Equal(t, 1, *second[1].ParentID)
	assert.Equal(t, 2, tree.Len())

	empty := NewCachedTree(8, 4, nil)
	assert.NotNil(t, empty.Replies())
	assert.Len(t, empty.Replies(), 0)
}

func TestParseVoteType(t *testing.T) {
	up, err := ParseVoteType("up")
	assert.Nil(t, err)
	assert.Equal(t, 1, up.Value())

	down, err := ParseVoteType("down")
	assert.Nil(t, err)
	assert.Equal(t, -1, down.Value())

	_, err = ParseVoteType("sideways")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestRoles(t *testing.T) {
	assert.True(t, RoleAdmin.IsStaff())
	assert.True(t, RoleModerator.IsStaff())
	assert.False(t, RoleMember.IsStaff())
	assert.False(t, RoleBanned.IsStaff())

	u := User{ID: 3, Username: "ginger"}
	assert.Equal(t, "ginger", u.Author().Name)
	u.DisplayName = "Ginger Bill"
	assert.Equal(t, "Ginger Bill", u.Author().Name)
}
