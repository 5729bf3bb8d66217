package board

import (
	"context"
	"groupboard-backend/internal/errors"
	"groupboard-backend/internal/feed"
	"groupboard-backend/internal/middleware"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/repository/interfaces"
	"groupboard-backend/internal/storage"
	"groupboard-backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GroupReader 打开会话前确认小组存在
type GroupReader interface {
	GetGroup(ctx context.Context, id string) (*model.Group, error)
}

// SessionHandler 小组动态会话的接口，每个会话对应一个同步器
type SessionHandler struct {
	registry  *feed.Registry
	groups    GroupReader
	store     interfaces.DocumentStore
	community feed.Community
	images    feed.ImageHost
}

func NewSessionHandler(registry *feed.Registry, groups GroupReader, store interfaces.DocumentStore, community feed.Community, images feed.ImageHost) *SessionHandler {
	return &SessionHandler{
		registry:  registry,
		groups:    groups,
		store:     store,
		community: community,
		images:    images,
	}
}

type replyRequest struct {
	Content string `json:"content" binding:"required"`
}

// Open 为当前用户打开小组会话，并等待首个快照
func (h *SessionHandler) Open(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	groupID := c.Param("id")
	if _, err := h.groups.GetGroup(c.Request.Context(), groupID); err != nil {
		errors.HandleError(c, err)
		return
	}

	id, s, err := h.registry.Open(c.Request.Context(), feed.Options{
		GroupID:   groupID,
		Identity:  identity,
		Store:     h.store,
		Community: h.community,
		Images:    h.images,
	})
	if err != nil {
		util.Logger.Error("打开会话失败", zap.String("group_id", groupID), zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrUpstream, "无法订阅小组动态", err))
		return
	}
	if err := s.WaitReady(c.Request.Context()); err != nil {
		h.registry.Remove(id)
		errors.HandleError(c, errors.Wrap(errors.ErrTimeout, "加载小组动态超时", err))
		return
	}

	util.Logger.Info("会话已打开", zap.String("session_id", id), zap.String("group_id", groupID), zap.String("user_id", identity.UserID))
	errors.HandleCreated(c, gin.H{"session_id": id, "view": s.View()}, "")
}

// View 返回会话当前视图
func (h *SessionHandler) View(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	errors.HandleSuccess(c, s.View(), "")
}

// Close 关闭会话
func (h *SessionHandler) Close(c *gin.Context) {
	if _, ok := h.session(c); !ok {
		return
	}
	h.registry.Remove(c.Param("session"))
	errors.HandleSuccess(c, nil, "会话已关闭")
}

func (h *SessionHandler) CreatePost(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var in feed.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "无效的帖子数据", err))
		return
	}
	id, err := s.CreatePost(c.Request.Context(), in)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleCreated(c, gin.H{"id": id}, "帖子已发布")
}

func (h *SessionHandler) EditPost(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var in feed.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "无效的帖子数据", err))
		return
	}
	if err := s.EditPost(c.Request.Context(), c.Param("pid"), in); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, nil, "帖子已更新")
}

func (h *SessionHandler) SubmitReply(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "回复内容不能为空", err))
		return
	}
	id, err := s.SubmitReply(c.Request.Context(), c.Param("pid"), req.Content)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleCreated(c, gin.H{"id": id}, "回复已发布")
}

func (h *SessionHandler) EditReply(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "回复内容不能为空", err))
		return
	}
	if err := s.EditReply(c.Request.Context(), c.Param("rid"), req.Content); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, nil, "回复已更新")
}

func (h *SessionHandler) ToggleLike(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	liked, err := s.ToggleLike(c.Request.Context(), c.Param("pid"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"liked": liked}, "")
}

func (h *SessionHandler) TogglePin(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	pinned, err := s.TogglePin(c.Request.Context(), c.Param("pid"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, gin.H{"pinned": pinned}, "")
}

func (h *SessionHandler) LikesPreview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	likers, err := s.LikesPreview(c.Request.Context(), c.Param("pid"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, likers, "")
}

func (h *SessionHandler) LikesModal(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	likers, err := s.LikesModal(c.Request.Context(), c.Param("pid"))
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, likers, "")
}

// SelectImage 把上传的图片放入暂存区，此时只生成预览，不上传
func (h *SessionHandler) SelectImage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "请选择图片", err))
		return
	}
	file, err := storage.FromMultipart(fh)
	if err != nil {
		util.Logger.Error("读取上传图片失败", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "无法读取图片", err))
		return
	}
	img, err := s.Composer().Select(file)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleCreated(c, img, "")
}

// UploadImages 上传暂存区中尚未上传的图片
func (h *SessionHandler) UploadImages(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Composer().Upload(c.Request.Context()); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, s.Composer().Items(), "图片已上传")
}

func (h *SessionHandler) RemoveImage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		errors.HandleError(c, errors.New(errors.ErrBadRequest, "无效的图片序号"))
		return
	}
	if err := s.Composer().Remove(c.Request.Context(), index); err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, s.Composer().Items(), "")
}

// session 读取路由中的会话，同时续期
func (h *SessionHandler) session(c *gin.Context) (*feed.Synchronizer, bool) {
	identity, _ := middleware.IdentityFrom(c)
	s, ok := h.registry.Get(c.Param("session"), identity.UserID)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrSessionNotFound, "会话不存在或已过期"))
		c.Abort()
		return nil, false
	}
	return s, true
}
