package feed

import (
	"context"
	"fmt"
	"groupboard-backend/internal/model"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/storage"
	"groupboard-backend/internal/util"
	"sync"

	"go.uber.org/zap"
)

// ImageHost 图片托管服务
type ImageHost interface {
	Validate(file *storage.File) error
	Upload(ctx context.Context, file *storage.File) (*storage.UploadResult, error)
	Preview(file *storage.File) (string, error)
	Revoke(urls []string)
	Delete(ctx context.Context, deleteHash string) error
}

// ComposerImage 暂存区中的一张图片
type ComposerImage struct {
	PreviewURL string           `json:"preview_url"`
	Filename   string           `json:"filename"`
	Size       int64            `json:"size"`
	Uploaded   bool             `json:"uploaded"`
	Image      *model.PostImage `json:"image,omitempty"`
}

type composerItem struct {
	file    *storage.File
	preview string
	image   *model.PostImage
}

// Composer 保存下一篇帖子选中的图片，最多 MaxPostImages 张
type Composer struct {
	host  ImageHost
	mu    sync.Mutex
	items []*composerItem
}

// NewComposer 创建图片暂存区
func NewComposer(host ImageHost) *Composer {
	return &Composer{host: host}
}

// Select 选择一张图片，超过数量上限或校验失败时不会触发任何上传
func (c *Composer) Select(file *storage.File) (ComposerImage, error) {
	if c.host == nil {
		return ComposerImage{}, svcerrors.New(svcerrors.ErrInternal, "图片服务不可用")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= model.MaxPostImages {
		return ComposerImage{}, svcerrors.New(svcerrors.ErrInvalidInput,
			fmt.Sprintf("每个帖子最多只能添加 %d 张图片", model.MaxPostImages))
	}
	if err := c.host.Validate(file); err != nil {
		return ComposerImage{}, svcerrors.Wrap(svcerrors.ErrInvalidInput, err.Error(), err)
	}
	preview, err := c.host.Preview(file)
	if err != nil {
		return ComposerImage{}, svcerrors.Wrap(svcerrors.ErrInvalidInput, err.Error(), err)
	}
	item := &composerItem{file: file, preview: preview}
	c.items = append(c.items, item)
	return item.view(), nil
}

// Upload 上传所有尚未上传的图片，失败的图片保持待上传状态
func (c *Composer) Upload(ctx context.Context) error {
	c.mu.Lock()
	var pending []*composerItem
	for _, item := range c.items {
		if item.image == nil {
			pending = append(pending, item)
		}
	}
	c.mu.Unlock()

	for _, item := range pending {
		res, err := c.host.Upload(ctx, item.file)
		if err != nil {
			return svcerrors.Wrap(svcerrors.ErrThirdParty, "图片上传失败，请稍后重试", err)
		}
		c.mu.Lock()
		// 上传期间可能已被移除
		staged := c.indexOf(item) >= 0
		if staged {
			item.image = &model.PostImage{
				URL:        res.URL,
				Filename:   res.Filename,
				Size:       res.Size,
				DeleteHash: res.DeleteHash,
				ID:         res.ID,
			}
		}
		c.mu.Unlock()
		if !staged {
			c.deleteHosted(ctx, res.ID, res.DeleteHash)
		}
	}
	return nil
}

// Remove 整体移除一张图片并撤销预览，已上传的图片同时从托管服务删除
func (c *Composer) Remove(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return svcerrors.New(svcerrors.ErrInvalidInput, "图片不存在")
	}
	item := c.items[index]
	c.items = append(c.items[:index:index], c.items[index+1:]...)
	c.mu.Unlock()

	c.host.Revoke([]string{item.preview})
	// 已上传的图片不会再被帖子引用，删除托管的文件
	if item.image != nil {
		c.deleteHosted(ctx, item.image.ID, item.image.DeleteHash)
	}
	return nil
}

func (c *Composer) deleteHosted(ctx context.Context, id, deleteHash string) {
	if err := c.host.Delete(ctx, deleteHash); err != nil {
		util.Logger.Warn("删除已上传图片失败", zap.String("id", id), zap.Error(err))
	}
}

// Reset 清空暂存区并撤销全部预览
func (c *Composer) Reset() {
	c.mu.Lock()
	urls := make([]string, 0, len(c.items))
	for _, item := range c.items {
		urls = append(urls, item.preview)
	}
	c.items = nil
	c.mu.Unlock()

	if c.host != nil && len(urls) > 0 {
		c.host.Revoke(urls)
	}
}

// HasPending 是否有尚未上传的图片
func (c *Composer) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.image == nil {
			return true
		}
	}
	return false
}

// Images 已上传的图片，按选择顺序
func (c *Composer) Images() []model.PostImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	images := make([]model.PostImage, 0, len(c.items))
	for _, item := range c.items {
		if item.image != nil {
			images = append(images, *item.image)
		}
	}
	return images
}

// Items 暂存区当前内容
func (c *Composer) Items() []ComposerImage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ComposerImage, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item.view())
	}
	return out
}

func (c *Composer) indexOf(target *composerItem) int {
	for i, item := range c.items {
		if item == target {
			return i
		}
	}
	return -1
}

func (item *composerItem) view() ComposerImage {
	v := ComposerImage{
		PreviewURL: item.preview,
		Filename:   item.file.Name,
		Size:       item.file.Size(),
		Uploaded:   item.image != nil,
	}
	if item.image != nil {
		img := *item.image
		v.Image = &img
	}
	return v
}
