package tail

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jpillora/backoff"
)

// Reader 以 tail -f 的方式持续读一个日志文件：读到末尾不返回 EOF，
// 等目录上的 fsnotify 事件（或退避轮询兜底）后接着读。
// 文件被截断就回到开头重读，被轮转（删除/改名）就等新文件出现后重开。
// ctx 取消时 Read 返回 io.EOF，上层的 Scanner 正常收尾。
type Reader struct {
	ctx     context.Context
	path    string
	f       *os.File
	off     int64
	watcher *fsnotify.Watcher
	b       *backoff.Backoff
}

func Open(ctx context.Context, path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	// 监听目录而不是文件：文件被轮转后原 watch 就失效了，
	// 目录事件还能看到新文件出现。
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = f.Close()
		_ = w.Close()
		return nil, err
	}
	return &Reader{
		ctx:     ctx,
		path:    path,
		f:       f,
		watcher: w,
		b:       &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second},
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 {
			r.off += int64(n)
			r.b.Reset()
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if err := r.wait(); err != nil {
			return 0, err
		}
	}
}

// wait 在读到末尾后阻塞到值得再试一次为止：截断、轮转、新写入、或退避超时。
func (r *Reader) wait() error {
	fi, err := os.Stat(r.path)
	if err != nil {
		// 文件不在了：等轮转方建好新文件再重开
		return r.reopen()
	}
	cur, err := r.f.Stat()
	if err != nil {
		return err
	}
	switch {
	case !os.SameFile(fi, cur):
		// rename 式轮转，路径下已经是新文件
		return r.reopen()
	case fi.Size() < r.off:
		// 变小即被截断，回到开头
		if _, err := r.f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		r.off = 0
		return nil
	case fi.Size() > r.off:
		// 上一轮 Read 和 Stat 之间有新数据，直接再读
		return nil
	}

	select {
	case <-r.ctx.Done():
		return io.EOF
	case <-r.watcher.Events:
	case <-r.watcher.Errors:
	case <-time.After(r.b.Duration()):
	}
	return nil
}

func (r *Reader) reopen() error {
	for {
		f, err := os.Open(r.path)
		if err == nil {
			_ = r.f.Close()
			r.f = f
			r.off = 0
			r.b.Reset()
			return nil
		}
		select {
		case <-r.ctx.Done():
			return io.EOF
		case <-r.watcher.Events:
		case <-time.After(r.b.Duration()):
		}
	}
}

func (r *Reader) Close() error {
	_ = r.watcher.Close()
	return r.f.Close()
}
