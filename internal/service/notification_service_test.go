package service

import (
	"context"
	"groupboard-backend/internal/model"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var boardMembers = []model.Member{
	{UserID: alice.UserID, UserEmail: alice.Email, Status: model.MemberActive},
	{UserID: bob.UserID, UserEmail: bob.Email, Status: model.MemberActive},
	{UserID: carol.UserID, UserEmail: carol.Email, Status: model.MemberRemoved},
}

func TestNotifyPostCreatedSkipsActor(t *testing.T) {
	store := newStore(t)
	notifications := NewNotificationService(store, nil, "http://localhost")
	ctx := context.Background()

	post := &model.Post{ID: "p1", GroupID: "g1", Title: "Kickoff", Type: model.PostDiscussion,
		Author: model.AuthorSnapshot{ID: alice.UserID, Name: "Alice"}}
	require.NoError(t, notifications.NotifyPostCreated(ctx, post, boardMembers, alice.UserID))

	got, err := notifications.ListForUser(ctx, bob.UserID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, NotificationNewPost, got[0].Type)
	assert.Equal(t, "p1", got[0].PostID)

	for _, id := range []string{alice.UserID, carol.UserID} {
		got, err := notifications.ListForUser(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestNotifyAnnouncementSendsMail(t *testing.T) {
	store := newStore(t)
	mailer := new(MockMailer)
	mailer.On("Send", bob.Email, "小组公告：Deadline moved", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "<strong>Friday</strong>")
	})).Return(nil)
	notifications := NewNotificationService(store, mailer, "http://localhost")

	post := &model.Post{ID: "p1", GroupID: "g1", Title: "Deadline moved", Content: "Now due **Friday**",
		Type: model.PostAnnouncement, Author: model.AuthorSnapshot{ID: alice.UserID, Name: "Alice"}}
	require.NoError(t, notifications.NotifyPostCreated(context.Background(), post, boardMembers, alice.UserID))

	got, err := notifications.ListForUser(context.Background(), bob.UserID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, NotificationAnnouncement, got[0].Type)
	mailer.AssertExpectations(t)
}

func TestNotifyReplyCreated(t *testing.T) {
	store := newStore(t)
	notifications := NewNotificationService(store, nil, "")
	ctx := context.Background()

	reply := &model.Reply{ID: "r1", PostID: "p1", GroupID: "g1", Author: model.AuthorSnapshot{ID: bob.UserID, Name: "Bob"}}
	post := &model.Post{ID: "p1", Title: "Kickoff"}
	require.NoError(t, notifications.NotifyReplyCreated(ctx, reply, post, boardMembers, bob.UserID))

	got, err := notifications.ListForUser(ctx, alice.UserID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ReplyID)
	assert.Contains(t, got[0].Message, "Kickoff")
}
