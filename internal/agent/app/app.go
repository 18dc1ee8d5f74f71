package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gatewatch/internal/agent/parse"
	"gatewatch/internal/agent/tail"
	"gatewatch/internal/server/recorder"
	"gatewatch/internal/server/storage"
	"gatewatch/internal/server/storage/duckdb"
	"gatewatch/internal/server/storage/sqlite"
)

// Run 把隧道守护进程的日志流灌进和 server 相同的记录管道：
// 同一个库、同一个文本日志、同一种记录格式，查询侧不区分来源。
func Run(ctx context.Context, cfg Config) error {
	if cfg.DataDir == "" {
		cfg.DataDir = "/data"
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("创建数据目录失败：%w", err)
	}

	store, err := openStore(cfg.DBDriver, cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := recorder.New(store, filepath.Join(cfg.DataDir, "connections.log"), nil)
	if err != nil {
		return err
	}
	defer rec.Close()

	var in io.ReadCloser
	switch {
	case cfg.File == "":
		in = os.Stdin
		log.Printf("从 stdin 读取守护进程日志")
	case cfg.Follow:
		r, err := tail.Open(ctx, cfg.File)
		if err != nil {
			return fmt.Errorf("打开日志文件失败：%w", err)
		}
		in = r
		log.Printf("跟随日志文件：%s", cfg.File)
	default:
		f, err := os.Open(cfg.File)
		if err != nil {
			return fmt.Errorf("打开日志文件失败：%w", err)
		}
		in = f
		log.Printf("读取日志文件：%s", cfg.File)
	}
	defer in.Close()

	scanner := bufio.NewScanner(in)
	// JSON 日志行可能很长，放大扫描缓冲
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var total, kept int
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		total++
		line := scanner.Text()

		conn, ok := parse.Line(line)
		if !ok {
			if cfg.Verbose {
				log.Printf("跳过：%s", truncate(line, 200))
			}
			continue
		}
		if err := rec.Record(ctx, conn); err != nil {
			log.Printf("记录失败（继续处理后续行）：%v", err)
			continue
		}
		kept++
		log.Printf("已记录：%s | %s | %s %s | %s",
			conn.Timestamp, conn.ClientIP, conn.Method, conn.Path, conn.Host)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("读取输入失败：%w", err)
	}

	log.Printf("处理完成：共 %d 行，入库 %d 条", total, kept)
	return nil
}

func openStore(driver, dataDir string) (storage.Store, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.NewStore(filepath.Join(dataDir, "connections.db"))
	case "duckdb":
		return duckdb.NewStore(filepath.Join(dataDir, "connections.duckdb"))
	default:
		return nil, fmt.Errorf("不支持的数据库类型：%s", driver)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
