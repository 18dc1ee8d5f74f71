package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gatewatch/internal/server/storage"
	"gatewatch/pkg/model"
)

// Notifier 在一条记录落盘成功后收到通知（实时推送一类的旁路消费者）。
// 实现必须立即返回，不能反压记录路径。
type Notifier interface {
	Notify(conn *model.Connection)
}

// Recorder 把每条连接记录写入两个去处：结构化存储（可查询的主数据）
// 和追加式文本日志（人能直接 tail / grep 的审计痕迹）。
type Recorder struct {
	store    storage.Store
	notifier Notifier

	mu      sync.Mutex
	logFile *os.File
}

func New(store storage.Store, logPath string, notifier Notifier) (*Recorder, error) {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开连接日志失败：%w", err)
	}
	return &Recorder{store: store, notifier: notifier, logFile: f}, nil
}

// Record 补齐时间戳后先写存储、再追加日志行。两步不回滚：
// 存储失败时日志行照常追加，至少留下一条可追查的痕迹，两边的错误合并返回。
func (r *Recorder) Record(ctx context.Context, conn *model.Connection) error {
	if conn.Time.IsZero() {
		conn.Time = time.Now()
	}
	if conn.Timestamp == "" {
		conn.Timestamp = conn.Time.Format(model.TimeLayout)
	}

	insErr := r.store.Insert(ctx, conn)

	line := fmt.Sprintf("%s | %s | %s | %s %s | %s | %s\n",
		conn.Timestamp,
		conn.ClientIP,
		conn.Country,
		conn.Method,
		conn.Path,
		conn.Host,
		conn.UserAgent,
	)
	r.mu.Lock()
	_, appErr := r.logFile.WriteString(line)
	r.mu.Unlock()

	if insErr != nil || appErr != nil {
		return errors.Join(insErr, appErr)
	}

	if r.notifier != nil {
		r.notifier.Notify(conn)
	}
	return nil
}

// Close 只关文本日志；store 的生命周期归创建它的一方管。
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logFile.Close()
}
