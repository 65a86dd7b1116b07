package notifier

import (
	"context"

	"signal-radar/internal/logging"
	"signal-radar/internal/model"

	"github.com/sirupsen/logrus"
)

// LogNotifier 仅将信号写入日志，适合未配置 webhook 或命令行场景。
type LogNotifier struct {
	logger logrus.FieldLogger
}

// NewLogNotifier 创建日志通知器。
func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logging.Component(logger, "notify")}
}

// Deliver 逐条记录信号，target 仅作为字段输出。
func (n LogNotifier) Deliver(ctx context.Context, target string, events []model.SignalEvent) error {
	for _, ev := range events {
		n.logger.WithFields(logrus.Fields{
			"target":     target,
			"profile_id": ev.ProfileID,
			"keyword":    ev.Keyword,
			"post_url":   ev.PostURL,
		}).Info("signal detected")
	}
	return nil
}
