package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatewatch/internal/config"
	"gatewatch/internal/server/app"
)

func main() {
	env := config.Load()

	var cfg app.Config
	flag.StringVar(&cfg.ListenAddr, "listen", ":"+env.Port, "监听地址")
	flag.StringVar(&cfg.DataDir, "data-dir", env.DataDir, "数据目录（数据库与文本日志）")
	flag.StringVar(&cfg.RoutesFile, "routes", env.RoutesFile, "路由配置文件路径")
	flag.StringVar(&cfg.DBDriver, "db-driver", env.DBDriver, "数据库类型：sqlite 或 duckdb")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(cfg)
	if err != nil {
		log.Fatalf("server 初始化失败：%v", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("server 监听：%s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server 运行失败：%v", err)
	}
}
