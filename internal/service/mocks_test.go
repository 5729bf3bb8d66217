package service

import (
	"context"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/notify"
	"groupboard-backend/internal/repository/memory"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMailer 是一个模拟的邮件发送器
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

// MockDispatcher 是一个模拟的级联通知
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, sub *model.ProjectSubmission) notify.Outcome {
	args := m.Called(ctx, sub)
	return args.Get(0).(notify.Outcome)
}

// MockNotifier 是一个模拟的帖子通知
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyPostCreated(ctx context.Context, post *model.Post, members []model.Member, actorID string) error {
	args := m.Called(ctx, post, members, actorID)
	return args.Error(0)
}

func (m *MockNotifier) NotifyReplyCreated(ctx context.Context, reply *model.Reply, post *model.Post, members []model.Member, actorID string) error {
	args := m.Called(ctx, reply, post, members, actorID)
	return args.Error(0)
}

var (
	alice = model.Identity{UserID: "u-alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell"}
	bob   = model.Identity{UserID: "u-bob", Email: "bob@example.com", DisplayName: "Bob"}
	carol = model.Identity{UserID: "u-carol", Email: "carol@example.com"}
)

func newStore(t *testing.T) *memory.DocumentStore {
	t.Helper()
	s := memory.NewDocumentStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// seedGroup 创建一个 alice 为管理员、bob 为成员的小组
func seedGroup(t *testing.T, groups *GroupService) *model.Group {
	t.Helper()
	ctx := context.Background()
	g, err := groups.CreateGroup(ctx, "Capstone Team", "final project", alice)
	require.NoError(t, err)
	_, err = groups.Join(ctx, g.ID, bob)
	require.NoError(t, err)
	return g
}
