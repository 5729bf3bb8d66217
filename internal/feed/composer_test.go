package feed

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/storage"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockImageHost 是一个模拟的图片托管服务
type MockImageHost struct {
	mock.Mock
}

func (m *MockImageHost) Validate(file *storage.File) error {
	args := m.Called(file)
	return args.Error(0)
}

func (m *MockImageHost) Upload(ctx context.Context, file *storage.File) (*storage.UploadResult, error) {
	args := m.Called(ctx, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UploadResult), args.Error(1)
}

func (m *MockImageHost) Preview(file *storage.File) (string, error) {
	args := m.Called(file)
	return args.String(0), args.Error(1)
}

func (m *MockImageHost) Revoke(urls []string) {
	m.Called(urls)
}

func (m *MockImageHost) Delete(ctx context.Context, deleteHash string) error {
	args := m.Called(ctx, deleteHash)
	return args.Error(0)
}

func image(name string) *storage.File {
	return &storage.File{Name: name, ContentType: "image/png", Data: []byte("png-bytes")}
}

func TestComposerCapRejectsWithoutUpload(t *testing.T) {
	host := new(MockImageHost)
	host.On("Validate", mock.Anything).Return(nil)
	host.On("Preview", mock.Anything).Return("blob:1", nil).Once()
	host.On("Preview", mock.Anything).Return("blob:2", nil).Once()
	c := NewComposer(host)

	_, err := c.Select(image("a.png"))
	require.NoError(t, err)
	_, err = c.Select(image("b.png"))
	require.NoError(t, err)

	_, err = c.Select(image("c.png"))
	assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
	assert.Len(t, c.Items(), model.MaxPostImages)
	host.AssertNumberOfCalls(t, "Validate", 2)
	host.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestComposerInvalidFileNotStaged(t *testing.T) {
	host := new(MockImageHost)
	host.On("Validate", mock.Anything).Return(storage.ErrUnsupportedType)
	c := NewComposer(host)

	_, err := c.Select(image("doc.pdf"))
	assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
	assert.Empty(t, c.Items())
	host.AssertNotCalled(t, "Preview", mock.Anything)
}

func TestComposerUploadAndRemove(t *testing.T) {
	host := new(MockImageHost)
	host.On("Validate", mock.Anything).Return(nil)
	host.On("Preview", mock.Anything).Return("blob:1", nil).Once()
	host.On("Preview", mock.Anything).Return("blob:2", nil).Once()
	host.On("Upload", mock.Anything, mock.Anything).Return(&storage.UploadResult{
		URL: "https://cdn.example.com/posts/x.png", DeleteHash: "h1", ID: "x", Filename: "a.png", Size: 9,
	}, nil).Once()
	host.On("Upload", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded")).Once()
	host.On("Revoke", []string{"blob:2"}).Return()
	host.On("Revoke", []string{"blob:1"}).Return()
	c := NewComposer(host)

	_, err := c.Select(image("a.png"))
	require.NoError(t, err)
	_, err = c.Select(image("b.png"))
	require.NoError(t, err)
	assert.True(t, c.HasPending())

	err = c.Upload(context.Background())
	assert.Equal(t, svcerrors.ErrThirdParty, svcerrors.GetErrorCode(err))
	assert.True(t, c.HasPending())
	require.Len(t, c.Images(), 1)
	assert.Equal(t, "h1", c.Images()[0].DeleteHash)

	require.NoError(t, c.Remove(context.Background(), 1))
	assert.False(t, c.HasPending())
	assert.Error(t, c.Remove(context.Background(), 5))
	host.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)

	c.Reset()
	assert.Empty(t, c.Items())
	host.AssertExpectations(t)
}

func TestComposerRemoveDeletesUploadedImage(t *testing.T) {
	host := new(MockImageHost)
	host.On("Validate", mock.Anything).Return(nil)
	host.On("Preview", mock.Anything).Return("blob:1", nil).Once()
	host.On("Preview", mock.Anything).Return("blob:2", nil).Once()
	host.On("Upload", mock.Anything, mock.Anything).Return(&storage.UploadResult{
		URL: "https://cdn.example.com/posts/a.png", DeleteHash: "h1", ID: "a", Filename: "a.png", Size: 9,
	}, nil).Once()
	host.On("Upload", mock.Anything, mock.Anything).Return(&storage.UploadResult{
		URL: "https://cdn.example.com/posts/b.png", DeleteHash: "h2", ID: "b", Filename: "b.png", Size: 9,
	}, nil).Once()
	host.On("Revoke", []string{"blob:1"}).Return()
	host.On("Revoke", []string{"blob:2"}).Return()
	host.On("Delete", mock.Anything, "h1").Return(nil).Once()
	host.On("Delete", mock.Anything, "h2").Return(errors.New("gone")).Once()
	c := NewComposer(host)
	ctx := context.Background()

	_, err := c.Select(image("a.png"))
	require.NoError(t, err)
	_, err = c.Select(image("b.png"))
	require.NoError(t, err)
	require.NoError(t, c.Upload(ctx))
	require.Len(t, c.Images(), 2)

	require.NoError(t, c.Remove(ctx, 0))
	require.Len(t, c.Images(), 1)
	assert.Equal(t, "h2", c.Images()[0].DeleteHash)

	// 托管服务删除失败不影响移出暂存区
	require.NoError(t, c.Remove(ctx, 0))
	assert.Empty(t, c.Items())
	host.AssertExpectations(t)
}

func TestComposerDeletesUploadFinishedAfterRemove(t *testing.T) {
	host := new(MockImageHost)
	ctx := context.Background()
	c := NewComposer(host)
	host.On("Validate", mock.Anything).Return(nil)
	host.On("Preview", mock.Anything).Return("blob:1", nil)
	host.On("Revoke", []string{"blob:1"}).Return()
	host.On("Upload", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		require.NoError(t, c.Remove(ctx, 0))
	}).Return(&storage.UploadResult{
		URL: "https://cdn.example.com/posts/a.png", DeleteHash: "h1", ID: "a", Filename: "a.png", Size: 9,
	}, nil).Once()
	host.On("Delete", mock.Anything, "h1").Return(nil).Once()

	_, err := c.Select(image("a.png"))
	require.NoError(t, err)
	require.NoError(t, c.Upload(ctx))
	assert.Empty(t, c.Items())
	host.AssertExpectations(t)
}

func TestComposerWithoutHost(t *testing.T) {
	c := NewComposer(nil)
	_, err := c.Select(image("a.png"))
	assert.Equal(t, svcerrors.ErrInternal, svcerrors.GetErrorCode(err))
	c.Reset()
}
