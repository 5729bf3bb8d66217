package storage

import (
	"context"
	"errors"
	"fmt"
	"groupboard-backend/internal/util"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImageSize 单张图片的大小上限
const MaxImageSize = 10 << 20

var (
	ErrEmptyFile         = errors.New("图片文件为空")
	ErrFileTooLarge      = errors.New("图片大小超过 10MB")
	ErrUnsupportedType   = errors.New("只支持 JPEG、PNG、GIF、WebP 格式的图片")
	ErrUnknownDeleteHash = errors.New("未知的删除凭证")
	ErrPreviewNotFound   = errors.New("预览不存在或已撤销")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Backend 对象存储后端
type Backend interface {
	UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

// File 内存中的图片文件，请求结束后仍然可用
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size 文件大小
func (f *File) Size() int64 {
	return int64(len(f.Data))
}

// FromMultipart 读取上传的表单文件，超过上限的部分不会读入内存
func FromMultipart(fh *multipart.FileHeader) (*File, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	return &File{
		Name:        path.Base(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// UploadResult 上传结果
type UploadResult struct {
	URL        string `json:"url"`
	DeleteHash string `json:"delete_hash"`
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
}

type preview struct {
	contentType string
	data        []byte
}

// ImageHost 帖子图片托管：校验、上传、删除以及上传前的预览
type ImageHost struct {
	backend    Backend
	previewURL string

	mu       sync.Mutex
	hashes   map[string]string
	previews map[string]preview
}

// NewImageHost 创建图片托管，previewURL 是预览接口的地址前缀
func NewImageHost(backend Backend, previewURL string) *ImageHost {
	return &ImageHost{
		backend:    backend,
		previewURL: strings.TrimSuffix(previewURL, "/"),
		hashes:     make(map[string]string),
		previews:   make(map[string]preview),
	}
}

// Validate 校验图片类型和大小
func (h *ImageHost) Validate(file *File) error {
	if file == nil || len(file.Data) == 0 {
		return ErrEmptyFile
	}
	if file.Size() > MaxImageSize {
		return ErrFileTooLarge
	}
	if _, ok := allowedTypes[detectType(file)]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// Upload 上传图片，返回访问地址和删除凭证
func (h *ImageHost) Upload(ctx context.Context, file *File) (*UploadResult, error) {
	if err := h.Validate(file); err != nil {
		return nil, err
	}
	contentType := detectType(file)
	id := uuid.NewString()
	key := "posts/" + id + allowedTypes[contentType]

	url, err := h.backend.UploadFile(ctx, key, contentType, file.Data)
	if err != nil {
		util.Logger.Error("上传图片失败", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("上传图片失败: %w", err)
	}

	deleteHash := uuid.NewString()
	h.mu.Lock()
	h.hashes[deleteHash] = key
	h.mu.Unlock()

	util.Logger.Info("图片上传成功", zap.String("key", key), zap.Int64("size", file.Size()))
	return &UploadResult{
		URL:        url,
		DeleteHash: deleteHash,
		ID:         id,
		Filename:   file.Name,
		Size:       file.Size(),
	}, nil
}

// Delete 根据删除凭证删除已上传的图片
func (h *ImageHost) Delete(ctx context.Context, deleteHash string) error {
	h.mu.Lock()
	key, ok := h.hashes[deleteHash]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownDeleteHash
	}
	if err := h.backend.DeleteFile(ctx, key); err != nil {
		util.Logger.Error("删除图片失败", zap.String("key", key), zap.Error(err))
		return err
	}
	h.mu.Lock()
	delete(h.hashes, deleteHash)
	h.mu.Unlock()
	return nil
}

// Preview 为尚未上传的图片生成可撤销的预览地址
func (h *ImageHost) Preview(file *File) (string, error) {
	if err := h.Validate(file); err != nil {
		return "", err
	}
	token := uuid.NewString()
	h.mu.Lock()
	h.previews[token] = preview{contentType: detectType(file), data: file.Data}
	h.mu.Unlock()
	return h.previewURL + "/" + token, nil
}

// OpenPreview 读取预览内容
func (h *ImageHost) OpenPreview(token string) (string, []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.previews[token]
	if !ok {
		return "", nil, ErrPreviewNotFound
	}
	return p.contentType, p.data, nil
}

// Revoke 撤销预览地址，未知地址直接忽略
func (h *ImageHost) Revoke(urls []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, u := range urls {
		delete(h.previews, path.Base(u))
	}
}

// PreviewCount 当前未撤销的预览数量
func (h *ImageHost) PreviewCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.previews)
}

func detectType(file *File) string {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(file.ContentType, ";")[0]))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(file.Data)
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}

// IsValidationError 判断是否为图片校验错误
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrFileTooLarge) || errors.Is(err, ErrUnsupportedType)
}
