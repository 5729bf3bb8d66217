package service

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"groupboard-backend/config"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/util"
	"html"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// Mailer 发送 HTML 邮件
type Mailer interface {
	Send(to, subject, body string) error
}

type EmailService struct {
	smtpHost    string
	smtpPort    int
	username    string
	password    string
	frontendURL string
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{
		smtpHost:    cfg.SMTPHost,
		smtpPort:    cfg.SMTPPort,
		username:    cfg.SMTPUsername,
		password:    cfg.SMTPPassword,
		frontendURL: cfg.FrontendURL,
	}
}

// Send 通过 SMTP 发送邮件
func (s *EmailService) Send(to, subject, body string) error {
	util.Logger.Info("开始发送邮件",
		zap.String("to", to),
		zap.String("subject", subject))

	m := mail.NewMessage()
	m.SetHeader("From", s.username)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := mail.NewDialer(s.smtpHost, s.smtpPort, s.username, s.password)
	d.Timeout = 20 * time.Second
	d.SSL = s.smtpPort == 465
	d.TLSConfig = &tls.Config{ServerName: s.smtpHost}

	if err := d.DialAndSend(m); err != nil {
		util.Logger.Error("发送邮件失败", zap.Error(err), zap.String("to", to))
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	util.Logger.Info("邮件发送成功", zap.String("to", to))
	return nil
}

// RenderMarkdown 把 Markdown 正文转换为 HTML，原始 HTML 会被过滤
func RenderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AnnouncementEmail 生成小组公告邮件
func AnnouncementEmail(frontendURL string, post *model.Post) (string, string, error) {
	body, err := RenderMarkdown(post.Content)
	if err != nil {
		return "", "", err
	}
	link := fmt.Sprintf("%s/groups/%s", frontendURL, post.GroupID)
	subject := "小组公告：" + post.Title
	content := fmt.Sprintf(`<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="UTF-8"><title>%s</title></head>
<body>
	<h2>%s</h2>
	<p>%s 发布了一条新公告：</p>
	<div>%s</div>
	<p><a href="%s">在小组中查看</a></p>
	<p style="color:#777;font-size:0.8em">此邮件由系统自动发送，请勿直接回复。</p>
</body>
</html>`,
		html.EscapeString(subject),
		html.EscapeString(post.Title),
		html.EscapeString(post.Author.Name),
		body,
		html.EscapeString(link))
	return subject, content, nil
}

// SubmissionAlertEmail 所有通知渠道都失败时发给管理员的邮件
func SubmissionAlertEmail(sub *model.ProjectSubmission, attempts []model.NotificationRecord) (string, string) {
	var rows bytes.Buffer
	for _, a := range attempts {
		fmt.Fprintf(&rows, "<li>%s：%s</li>", html.EscapeString(a.Channel), html.EscapeString(a.Error))
	}
	subject := "项目提交通知发送失败：" + sub.Title
	content := fmt.Sprintf(`<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="UTF-8"><title>%s</title></head>
<body>
	<h2>%s</h2>
	<p>小组 %s 提交了项目，但所有通知渠道都发送失败。</p>
	<p>提交人：%s (%s)</p>
	<ul>%s</ul>
</body>
</html>`,
		html.EscapeString(subject),
		html.EscapeString(sub.Title),
		html.EscapeString(sub.GroupID),
		html.EscapeString(sub.SubmittedBy.Name),
		html.EscapeString(sub.SubmittedBy.Email),
		rows.String())
	return subject, content
}
