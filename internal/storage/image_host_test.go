package storage

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error) {
	args := m.Called(key, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) DeleteFile(ctx context.Context, key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func TestValidate(t *testing.T) {
	host := NewImageHost(new(MockBackend), "http://localhost/api/previews")

	tests := []struct {
		name string
		file *File
		want error
	}{
		{"空文件", &File{Name: "a.png", ContentType: "image/png"}, ErrEmptyFile},
		{"过大", &File{Name: "a.png", ContentType: "image/png", Data: make([]byte, MaxImageSize+1)}, ErrFileTooLarge},
		{"不支持的类型", &File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}, ErrUnsupportedType},
		{"PNG", &File{Name: "a.png", ContentType: "image/png", Data: pngHeader}, nil},
		{"WebP", &File{Name: "a.webp", ContentType: "image/webp", Data: []byte("RIFF")}, nil},
		{"按内容识别", &File{Name: "a", Data: pngHeader}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := host.Validate(tt.file)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
	assert.ErrorIs(t, host.Validate(nil), ErrEmptyFile)
}

func TestUploadAndDelete(t *testing.T) {
	backend := new(MockBackend)
	host := NewImageHost(backend, "http://localhost/api/previews")
	file := &File{Name: "photo.png", ContentType: "image/png", Data: pngHeader}

	backend.On("UploadFile", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "posts/") && strings.HasSuffix(key, ".png")
	}), "image/png", pngHeader).Return("https://cdn.example.com/photo.png", nil)

	res, err := host.Upload(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/photo.png", res.URL)
	assert.Equal(t, "photo.png", res.Filename)
	assert.Equal(t, int64(len(pngHeader)), res.Size)
	assert.NotEmpty(t, res.DeleteHash)
	assert.NotEmpty(t, res.ID)

	backend.On("DeleteFile", "posts/"+res.ID+".png").Return(nil)
	require.NoError(t, host.Delete(context.Background(), res.DeleteHash))
	assert.ErrorIs(t, host.Delete(context.Background(), res.DeleteHash), ErrUnknownDeleteHash)
	backend.AssertExpectations(t)
}

func TestUploadRejectsInvalidWithoutBackendCall(t *testing.T) {
	backend := new(MockBackend)
	host := NewImageHost(backend, "")

	_, err := host.Upload(context.Background(), &File{Name: "empty.png", ContentType: "image/png"})
	assert.ErrorIs(t, err, ErrEmptyFile)
	backend.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadBackendFailure(t *testing.T) {
	backend := new(MockBackend)
	host := NewImageHost(backend, "")
	backend.On("UploadFile", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket unavailable"))

	_, err := host.Upload(context.Background(), &File{Name: "a.png", ContentType: "image/png", Data: pngHeader})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestPreviewAndRevoke(t *testing.T) {
	host := NewImageHost(new(MockBackend), "http://localhost:8080/api/previews/")
	file := &File{Name: "a.png", ContentType: "image/png", Data: pngHeader}

	url, err := host.Preview(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/api/previews/"))

	ct, data, err := host.OpenPreview(filepath.Base(url))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, pngHeader, data)

	host.Revoke([]string{url, "http://localhost:8080/api/previews/unknown"})
	assert.Equal(t, 0, host.PreviewCount())
	_, _, err = host.OpenPreview(filepath.Base(url))
	assert.ErrorIs(t, err, ErrPreviewNotFound)
}

func TestFromMultipart(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "cat.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	file, err := FromMultipart(req.MultipartForm.File["image"][0])
	require.NoError(t, err)
	assert.Equal(t, "cat.png", file.Name)
	assert.Equal(t, pngHeader, file.Data)
	assert.NoError(t, NewImageHost(new(MockBackend), "").Validate(file))
}

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocalStorage(dir, "http://localhost:8080/uploads/")
	require.NoError(t, err)

	url, err := local.UploadFile(context.Background(), "posts/x.png", "image/png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads/posts/x.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "posts", "x.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, local.DeleteFile(context.Background(), "posts/x.png"))
	require.NoError(t, local.DeleteFile(context.Background(), "posts/x.png"))
	_, err = os.Stat(filepath.Join(dir, "posts", "x.png"))
	assert.True(t, os.IsNotExist(err))

	// 路径穿越被限制在存储目录内
	_, err = local.UploadFile(context.Background(), "../../escape.png", "image/png", pngHeader)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "escape.png"))
	assert.NoError(t, err)
}
