package service

import (
	"context"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/notify"
	svcerrors "groupboard-backend/internal/service/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validSubmission(groupID string) *model.ProjectSubmission {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &model.ProjectSubmission{
		GroupID:     groupID,
		Title:       "  Study Planner  ",
		Description: "A shared planner for study groups.",
		TechStack:   []string{"Go", "Vue"},
		RepoURL:     "https://github.com/example/planner",
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, 10),
	}
}

func TestSubmitDelivered(t *testing.T) {
	store := newStore(t)
	groups := NewGroupService(store)
	g := seedGroup(t, groups)

	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("*model.ProjectSubmission")).Return(notify.Outcome{
		Delivered: true,
		Channel:   notify.ChannelSecondary,
		Attempts: []model.NotificationRecord{
			{Channel: notify.ChannelPrimary, Error: "primary responded 500"},
			{Channel: notify.ChannelSecondary, Success: true},
		},
	})
	projects := NewProjectService(store, dispatcher, nil, "")

	ctx := context.Background()
	id, err := projects.Submit(ctx, validSubmission(g.ID), bob)
	require.NoError(t, err)
	projects.Wait()

	sub, err := projects.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Study Planner", sub.Title)
	assert.Equal(t, "Bob", sub.SubmittedBy.Name)
	assert.True(t, sub.AdminNotifiedOfSubmission)
	assert.Equal(t, notify.ChannelSecondary, sub.NotificationChannel)
	assert.NotNil(t, sub.AdminNotifiedAt)
	assert.Nil(t, sub.NotificationFailedAt)
	assert.Len(t, sub.NotificationAttempts, 2)
	assert.Equal(t, model.ComplexitySimple, sub.Analytics.Complexity)
	dispatcher.AssertExpectations(t)
}

func TestSubmitAllChannelsFail(t *testing.T) {
	store := newStore(t)
	g := seedGroup(t, NewGroupService(store))

	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(notify.Outcome{
		Attempts: []model.NotificationRecord{{Channel: notify.ChannelPrimary, Error: "timeout"}},
	})
	mailer := new(MockMailer)
	mailer.On("Send", "admin@example.com", mock.MatchedBy(func(s string) bool {
		return strings.Contains(s, "Study Planner")
	}), mock.Anything).Return(nil)
	projects := NewProjectService(store, dispatcher, mailer, "admin@example.com")

	ctx := context.Background()
	id, err := projects.Submit(ctx, validSubmission(g.ID), bob)
	require.NoError(t, err)
	projects.Wait()

	sub, err := projects.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, sub.AdminNotifiedOfSubmission)
	assert.NotNil(t, sub.NotificationFailedAt)
	assert.Empty(t, sub.NotificationChannel)
	mailer.AssertExpectations(t)
}

func TestSubmitValidation(t *testing.T) {
	store := newStore(t)
	g := seedGroup(t, NewGroupService(store))
	projects := NewProjectService(store, new(MockDispatcher), nil, "")
	ctx := context.Background()

	tests := []struct {
		name   string
		modify func(*model.ProjectSubmission)
		msg    string
	}{
		{"空白标题", func(s *model.ProjectSubmission) { s.Title = "   " }, "项目标题不能为空"},
		{"缺少描述", func(s *model.ProjectSubmission) { s.Description = "" }, "项目描述不能为空"},
		{"无效链接", func(s *model.ProjectSubmission) { s.RepoURL = "not a url" }, "代码仓库链接格式无效"},
		{"日期颠倒", func(s *model.ProjectSubmission) { s.EndDate = s.StartDate.AddDate(0, 0, -1) }, "结束日期必须晚于开始日期"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission(g.ID)
			tt.modify(sub)
			_, err := projects.Submit(ctx, sub, bob)
			assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
			assert.Equal(t, tt.msg, svcerrors.GetMessage(err))
		})
	}
}

func TestSubmitRequiresActiveMember(t *testing.T) {
	store := newStore(t)
	g := seedGroup(t, NewGroupService(store))
	projects := NewProjectService(store, new(MockDispatcher), nil, "")
	ctx := context.Background()

	_, err := projects.Submit(ctx, validSubmission(g.ID), carol)
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))

	_, err = projects.Submit(ctx, validSubmission("missing"), bob)
	assert.Equal(t, svcerrors.ErrNotFound, svcerrors.GetErrorCode(err))
}

func TestAnalyze(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	full := &model.ProjectSubmission{
		Title:       "Campus Map",
		Description: strings.Repeat("x", 60),
		Objectives:  "help freshmen",
		TechStack:   []string{"Go", "Vue", "MySQL", "Redis", "Docker"},
		RepoURL:     "https://example.com/repo",
		DemoURL:     "https://example.com/demo",
		TeamMembers: []string{"a", "b"},
		StartDate:   start,
		EndDate:     start.AddDate(0, 0, 30),
	}
	a := Analyze(full)
	assert.Equal(t, 100, a.CompletenessScore)
	assert.Equal(t, 30, a.DurationDays)
	assert.Equal(t, model.ComplexityComplex, a.Complexity)

	short := &model.ProjectSubmission{Title: "T", Description: "short", StartDate: start, EndDate: start.AddDate(0, 0, 20)}
	a = Analyze(short)
	assert.Equal(t, 20, a.CompletenessScore)
	assert.Equal(t, model.ComplexityModerate, a.Complexity)
}
