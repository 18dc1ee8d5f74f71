package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gatewatch/internal/agent/app"
	"gatewatch/internal/config"
)

func main() {
	env := config.Load()

	var cfg app.Config
	flag.StringVar(&cfg.DataDir, "data-dir", env.DataDir, "数据目录（数据库与文本日志）")
	flag.StringVar(&cfg.DBDriver, "db-driver", env.DBDriver, "数据库类型：sqlite 或 duckdb")
	flag.StringVar(&cfg.File, "file", "", "要解析的日志文件路径，留空读 stdin")
	flag.BoolVar(&cfg.Follow, "follow", false, "持续跟踪文件新增内容（类似 tail -f）")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "打印被跳过的日志行")
	flag.Parse()

	if cfg.Follow && cfg.File == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Printf("agent 退出：%v", err)
		os.Exit(1)
	}

	fmt.Println("agent 正常退出")
}
