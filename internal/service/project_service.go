package service

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/notify"
	"groupboard-backend/internal/repository/interfaces"
	svcerrors "groupboard-backend/internal/service/errors"
	"groupboard-backend/internal/util"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Dispatcher 项目提交的管理员通知
type Dispatcher interface {
	Dispatch(ctx context.Context, sub *model.ProjectSubmission) notify.Outcome
}

// ProjectService 处理小组项目提交
type ProjectService struct {
	store      interfaces.DocumentStore
	dispatcher Dispatcher
	mailer     Mailer
	adminEmail string
	validate   *validator.Validate
	timeout    time.Duration
	wg         sync.WaitGroup
}

// NewProjectService mailer 为 nil 时所有渠道失败也不发送告警邮件
func NewProjectService(store interfaces.DocumentStore, dispatcher Dispatcher, mailer Mailer, adminEmail string) *ProjectService {
	return &ProjectService{
		store:      store,
		dispatcher: dispatcher,
		mailer:     mailer,
		adminEmail: adminEmail,
		validate:   util.NewValidator(),
		timeout:    time.Minute,
	}
}

// Submit 校验并保存项目提交，然后在后台发送管理员通知，通知结果不影响提交成功
func (s *ProjectService) Submit(ctx context.Context, sub *model.ProjectSubmission, submitter model.Identity) (string, error) {
	sub.Title = strings.TrimSpace(sub.Title)
	sub.Description = strings.TrimSpace(sub.Description)
	sub.Objectives = strings.TrimSpace(sub.Objectives)
	sub.RepoURL = strings.TrimSpace(sub.RepoURL)
	sub.DemoURL = strings.TrimSpace(sub.DemoURL)
	if err := s.validate.Struct(sub); err != nil {
		return "", svcerrors.Wrap(svcerrors.ErrInvalidInput, validationMessage(err), err)
	}

	if _, err := s.store.Get(ctx, model.CollectionGroups, sub.GroupID); err != nil {
		if errors.Is(err, model.ErrDocumentNotFound) {
			return "", svcerrors.Wrap(svcerrors.ErrNotFound, "小组不存在", err)
		}
		return "", svcerrors.Wrap(svcerrors.ErrDatabase, "读取小组失败", err)
	}
	members, err := s.store.Query(ctx, model.NewQuery(model.CollectionMembers,
		model.Where("group_id", sub.GroupID),
		model.Where("user_id", submitter.UserID),
		model.Where("status", string(model.MemberActive))))
	if err != nil {
		return "", svcerrors.Wrap(svcerrors.ErrDatabase, "读取成员失败", err)
	}
	if len(members) == 0 {
		return "", svcerrors.New(svcerrors.ErrForbidden, "只有小组的活跃成员才能提交项目")
	}

	now := time.Now().UTC()
	sub.SubmittedBy = model.AuthorSnapshot{
		ID:         submitter.UserID,
		Name:       displayName(submitter),
		Email:      submitter.Email,
		Photo:      submitter.PhotoURL,
		CapturedAt: now,
	}
	sub.Analytics = Analyze(sub)
	sub.AdminNotifiedOfSubmission = false
	sub.NotificationAttempts = []model.NotificationRecord{}

	fields, err := model.EncodeFields(sub)
	if err != nil {
		return "", svcerrors.Wrap(svcerrors.ErrInternal, "提交数据无效", err)
	}
	id, err := s.store.Add(ctx, model.CollectionSubmissions, fields, model.ServerTimestamp("created_at"))
	if err != nil {
		util.Logger.Error("保存项目提交失败", zap.String("group_id", sub.GroupID), zap.Error(err))
		return "", svcerrors.Wrap(svcerrors.ErrDatabase, "提交失败，请稍后重试", err)
	}
	sub.ID = id
	sub.CreatedAt = now
	util.Logger.Info("项目提交成功", zap.String("submission_id", id), zap.String("group_id", sub.GroupID))

	dispatched := *sub
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.DispatchNotifications(ctx, &dispatched)
	}()
	return id, nil
}

// DispatchNotifications 执行级联通知并把结果写回提交记录
func (s *ProjectService) DispatchNotifications(ctx context.Context, sub *model.ProjectSubmission) notify.Outcome {
	outcome := s.dispatcher.Dispatch(ctx, sub)

	updates := []model.FieldUpdate{
		model.Set("admin_notified_of_submission", outcome.Delivered),
		model.Set("notification_attempts", outcome.Attempts),
	}
	if outcome.Delivered {
		updates = append(updates,
			model.Set("notification_channel", outcome.Channel),
			model.ServerTimestamp("admin_notified_at"))
		util.Logger.Info("项目提交通知已送达", zap.String("submission_id", sub.ID), zap.String("channel", outcome.Channel))
	} else {
		updates = append(updates, model.ServerTimestamp("notification_failed_at"))
		util.Logger.Error("项目提交通知全部失败",
			zap.String("submission_id", sub.ID),
			zap.Int("attempts", len(outcome.Attempts)))
		s.alertAdmin(sub, outcome.Attempts)
	}

	if err := s.store.Update(ctx, model.CollectionSubmissions, sub.ID, updates...); err != nil {
		util.Logger.Error("更新通知记录失败", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return outcome
}

func (s *ProjectService) alertAdmin(sub *model.ProjectSubmission, attempts []model.NotificationRecord) {
	if s.mailer == nil || s.adminEmail == "" {
		return
	}
	subject, body := SubmissionAlertEmail(sub, attempts)
	if err := s.mailer.Send(s.adminEmail, subject, body); err != nil {
		util.Logger.Error("发送告警邮件失败", zap.String("submission_id", sub.ID), zap.Error(err))
	}
}

// Get 读取项目提交
func (s *ProjectService) Get(ctx context.Context, id string) (*model.ProjectSubmission, error) {
	doc, err := s.store.Get(ctx, model.CollectionSubmissions, id)
	if errors.Is(err, model.ErrDocumentNotFound) {
		return nil, svcerrors.Wrap(svcerrors.ErrNotFound, "项目提交不存在", err)
	}
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrDatabase, "读取项目提交失败", err)
	}
	var sub model.ProjectSubmission
	if err := doc.DataTo(&sub); err != nil {
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "项目提交数据无效", err)
	}
	return &sub, nil
}

// Wait 等待后台通知完成
func (s *ProjectService) Wait() {
	s.wg.Wait()
}

// Analyze 计算提交内容的统计信息，供后台管理工具使用
func Analyze(sub *model.ProjectSubmission) model.SubmissionAnalytics {
	a := model.SubmissionAnalytics{
		TitleLength:       utf8.RuneCountInString(sub.Title),
		DescriptionLength: utf8.RuneCountInString(sub.Description),
		ObjectivesLength:  utf8.RuneCountInString(sub.Objectives),
		TechStackCount:    len(sub.TechStack),
		TeamSize:          len(sub.TeamMembers),
	}
	if sub.EndDate.After(sub.StartDate) {
		a.DurationDays = int(sub.EndDate.Sub(sub.StartDate).Hours() / 24)
	}

	score := 0
	if a.TitleLength > 0 {
		score += 10
	}
	switch {
	case a.DescriptionLength >= 50:
		score += 25
	case a.DescriptionLength > 0:
		score += 10
	}
	if a.ObjectivesLength > 0 {
		score += 15
	}
	if a.TechStackCount > 0 {
		score += 15
	}
	if sub.RepoURL != "" {
		score += 15
	}
	if sub.DemoURL != "" {
		score += 10
	}
	if a.TeamSize > 0 {
		score += 10
	}
	a.CompletenessScore = score

	switch {
	case a.TechStackCount >= 5 || a.TeamSize >= 5 || a.DurationDays > 60:
		a.Complexity = model.ComplexityComplex
	case a.TechStackCount <= 2 && a.DurationDays <= 14:
		a.Complexity = model.ComplexitySimple
	default:
		a.Complexity = model.ComplexityModerate
	}
	return a
}

var fieldMessages = map[string]string{
	"GroupID.required":      "请选择小组",
	"Title.required":        "项目标题不能为空",
	"Title.not_blank":       "项目标题不能为空",
	"Title.max":             "项目标题不能超过 200 个字符",
	"Description.required":  "项目描述不能为空",
	"Description.not_blank": "项目描述不能为空",
	"RepoURL.url":           "代码仓库链接格式无效",
	"DemoURL.url":           "演示链接格式无效",
	"StartDate.required":    "请填写开始日期",
	"EndDate.required":      "请填写结束日期",
	"EndDate.gtfield":       "结束日期必须晚于开始日期",
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if msg, ok := fieldMessages[verrs[0].Field()+"."+verrs[0].Tag()]; ok {
			return msg
		}
		return "字段 " + verrs[0].Field() + " 无效"
	}
	return "提交内容无效"
}
