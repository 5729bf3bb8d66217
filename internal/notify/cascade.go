package notify

import (
	"context"
	"fmt"
	"groupboard-backend/internal/model"
	"groupboard-backend/internal/util"
	"time"

	"go.uber.org/zap"
)

// Transport 一个通知渠道
type Transport interface {
	Name() string
	Send(ctx context.Context, sub *model.ProjectSubmission) error
}

// Outcome 一次级联发送的结果
type Outcome struct {
	Delivered bool                       `json:"delivered"`
	Channel   string                     `json:"channel,omitempty"`
	Attempts  []model.NotificationRecord `json:"attempts"`
}

// Cascade 按顺序尝试各个渠道，第一个成功后停止
type Cascade struct {
	transports []Transport
	now        func() time.Time
}

func NewCascade(transports ...Transport) *Cascade {
	return &Cascade{transports: transports, now: time.Now}
}

// Len 渠道数量
func (c *Cascade) Len() int {
	return len(c.transports)
}

// Dispatch 依次尝试每个渠道，某个渠道失败不影响后续渠道
func (c *Cascade) Dispatch(ctx context.Context, sub *model.ProjectSubmission) Outcome {
	outcome := Outcome{Attempts: make([]model.NotificationRecord, 0, len(c.transports))}
	for _, t := range c.transports {
		if ctx.Err() != nil {
			break
		}
		err := c.send(ctx, t, sub)
		record := model.NotificationRecord{Channel: t.Name(), Success: err == nil, At: c.now().UTC()}
		if err != nil {
			record.Error = err.Error()
			util.Logger.Warn("通知渠道发送失败", zap.String("channel", t.Name()), zap.String("submission_id", sub.ID), zap.Error(err))
		}
		outcome.Attempts = append(outcome.Attempts, record)
		if err == nil {
			outcome.Delivered = true
			outcome.Channel = t.Name()
			break
		}
	}
	return outcome
}

func (c *Cascade) send(ctx context.Context, t Transport, sub *model.ProjectSubmission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return t.Send(ctx, sub)
}
