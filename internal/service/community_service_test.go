package service

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	svcerrors "groupboard-backend/internal/service/errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newPost(groupID string, author model.Identity) *model.Post {
	return &model.Post{
		GroupID:   groupID,
		Author:    model.AuthorSnapshot{ID: author.UserID, Name: displayName(author), Email: author.Email},
		Title:     "Weekly sync",
		Content:   "Agenda in the doc",
		Type:      model.PostDiscussion,
		LikeCount: 5,
	}
}

func TestCreatePostResetsCountersAndNotifies(t *testing.T) {
	store := newStore(t)
	notifier := new(MockNotifier)
	notifier.On("NotifyPostCreated", mock.Anything, mock.AnythingOfType("*model.Post"), mock.Anything, alice.UserID).Return(nil)
	community := NewCommunityService(store, notifier)
	ctx := context.Background()

	id, err := community.CreatePost(ctx, newPost("g1", alice), nil)
	require.NoError(t, err)
	community.Wait()

	post, err := community.GetPost(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, post.LikeCount)
	assert.Equal(t, 0, post.ReplyCount)
	assert.Empty(t, post.Likes)
	assert.False(t, post.IsEdited)
	assert.False(t, post.CreatedAt.IsZero())
	assert.True(t, post.AdminNotifiedOfSubmission)
	require.NotNil(t, post.NotifiedAt)
	assert.False(t, post.NotifiedAt.IsZero())
	notifier.AssertExpectations(t)
}

func TestNotifierFailureDoesNotFailCreate(t *testing.T) {
	store := newStore(t)
	notifier := new(MockNotifier)
	notifier.On("NotifyPostCreated", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	community := NewCommunityService(store, notifier)

	id, err := community.CreatePost(context.Background(), newPost("g1", alice), nil)
	assert.NoError(t, err)
	community.Wait()
	notifier.AssertExpectations(t)

	post, err := community.GetPost(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, post.AdminNotifiedOfSubmission)
	assert.Nil(t, post.NotifiedAt)
}

func TestCreateReplyIncrementsCount(t *testing.T) {
	store := newStore(t)
	community := NewCommunityService(store, nil)
	ctx := context.Background()

	post := newPost("g1", alice)
	postID, err := community.CreatePost(ctx, post, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := community.CreateReply(ctx, &model.Reply{PostID: postID, GroupID: "g1", Content: "ok"}, post, nil)
		require.NoError(t, err)
	}
	got, err := community.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReplyCount)
}

func TestCreateReplyCountFailureStillSucceeds(t *testing.T) {
	store := newStore(t)
	community := NewCommunityService(store, nil)
	ctx := context.Background()

	post := newPost("g1", alice)
	postID, err := community.CreatePost(ctx, post, nil)
	require.NoError(t, err)

	store.FailNext("update", errors.New("unavailable"))
	replyID, err := community.CreateReply(ctx, &model.Reply{PostID: postID, GroupID: "g1", Content: "ok"}, post, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, replyID)

	got, err := community.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReplyCount)
}

func TestSetLikeKeepsCountInStep(t *testing.T) {
	store := newStore(t)
	community := NewCommunityService(store, nil)
	ctx := context.Background()

	postID, err := community.CreatePost(ctx, newPost("g1", alice), nil)
	require.NoError(t, err)

	require.NoError(t, community.SetLike(ctx, postID, "u1", true))
	require.NoError(t, community.SetLike(ctx, postID, "u2", true))
	require.NoError(t, community.SetLike(ctx, postID, "u1", false))

	post, err := community.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, post.Likes)
	assert.Equal(t, len(post.Likes), post.LikeCount)

	err = community.SetLike(ctx, "missing", "u1", true)
	assert.Equal(t, svcerrors.ErrNotFound, svcerrors.GetErrorCode(err))
}

func TestRepeatedSetLikeDoesNotDriftCount(t *testing.T) {
	store := newStore(t)
	community := NewCommunityService(store, nil)
	ctx := context.Background()

	postID, err := community.CreatePost(ctx, newPost("g1", alice), nil)
	require.NoError(t, err)

	require.NoError(t, community.SetLike(ctx, postID, "u1", true))
	require.NoError(t, community.SetLike(ctx, postID, "u1", true))
	post, err := community.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, post.Likes)
	assert.Equal(t, 1, post.LikeCount)

	require.NoError(t, community.SetLike(ctx, postID, "u1", false))
	require.NoError(t, community.SetLike(ctx, postID, "u1", false))
	post, err = community.GetPost(ctx, postID)
	require.NoError(t, err)
	assert.Empty(t, post.Likes)
	assert.Equal(t, 0, post.LikeCount)
}

func TestLikerLookups(t *testing.T) {
	store := newStore(t)
	g := seedGroup(t, NewGroupService(store))
	community := NewCommunityService(store, nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, model.CollectionUsers, alice.UserID, map[string]interface{}{
		"email": alice.Email, "first_name": "Alice",
	}))

	profiles, err := community.LikerProfiles(ctx, []string{alice.UserID, "ghost"})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, alice.UserID, profiles[0].ID)

	members, err := community.LikerMembers(ctx, g.ID, []string{bob.UserID, carol.UserID})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, bob.UserID, members[0].UserID)

	profiles, err = community.LikerProfiles(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, profiles)
}
