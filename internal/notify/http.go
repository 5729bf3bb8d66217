package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"groupboard-backend/config"
	"groupboard-backend/internal/model"
	"io"
	"net/http"
	"time"
)

// 渠道名称，写入提交记录的 notification_channel
const (
	ChannelPrimary     = "primary"
	ChannelSecondary   = "secondary"
	ChannelMinimal     = "minimal"
	ChannelSpreadsheet = "spreadsheet"
)

// PayloadFunc 生成渠道的请求体
type PayloadFunc func(sub *model.ProjectSubmission) interface{}

// HTTPTransport 以 JSON POST 发送通知的渠道
type HTTPTransport struct {
	name    string
	url     string
	client  *http.Client
	payload PayloadFunc
}

func NewHTTPTransport(name, url string, client *http.Client, payload PayloadFunc) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{name: name, url: url, client: client, payload: payload}
}

func (t *HTTPTransport) Name() string {
	return t.name
}

func (t *HTTPTransport) Send(ctx context.Context, sub *model.ProjectSubmission) error {
	body, err := json.Marshal(t.payload(sub))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s responded %d", t.name, resp.StatusCode)
	}
	return nil
}

// FullPayload 包含全部提交内容和分析字段
func FullPayload(sub *model.ProjectSubmission) interface{} {
	return map[string]interface{}{
		"type":       "project_submission",
		"submission": sub,
		"analytics":  sub.Analytics,
	}
}

// MinimalPayload 只包含识别提交所需的字段
func MinimalPayload(sub *model.ProjectSubmission) interface{} {
	return map[string]interface{}{
		"type":          "project_submission",
		"submission_id": sub.ID,
		"group_id":      sub.GroupID,
		"title":         sub.Title,
		"submitted_by":  sub.SubmittedBy.Email,
		"created_at":    sub.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// SpreadsheetRow 表格 webhook 使用的单行数据
func SpreadsheetRow(sub *model.ProjectSubmission) interface{} {
	return map[string]interface{}{
		"sheet": "submissions",
		"row": []interface{}{
			sub.CreatedAt.UTC().Format(time.RFC3339),
			sub.ID,
			sub.GroupID,
			sub.Title,
			sub.SubmittedBy.Name,
			sub.SubmittedBy.Email,
			sub.RepoURL,
			sub.DemoURL,
			sub.Analytics.CompletenessScore,
			sub.Analytics.Complexity,
		},
	}
}

// FromConfig 按配置创建级联通知，未配置地址的渠道被跳过
func FromConfig(cfg *config.Config) *Cascade {
	client := &http.Client{Timeout: cfg.NotifyTimeout}
	var transports []Transport
	add := func(name, url string, payload PayloadFunc) {
		if url != "" {
			transports = append(transports, NewHTTPTransport(name, url, client, payload))
		}
	}
	add(ChannelPrimary, cfg.NotifyPrimaryURL, FullPayload)
	add(ChannelSecondary, cfg.NotifySecondaryURL, FullPayload)
	add(ChannelMinimal, cfg.NotifyMinimalURL, MinimalPayload)
	add(ChannelSpreadsheet, cfg.SpreadsheetWebhook, SpreadsheetRow)
	return NewCascade(transports...)
}
