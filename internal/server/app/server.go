package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"gatewatch/internal/server/api"
	"gatewatch/internal/server/dashboard"
	"gatewatch/internal/server/proxy"
	"gatewatch/internal/server/recorder"
	"gatewatch/internal/server/storage"
	"gatewatch/internal/server/storage/duckdb"
	"gatewatch/internal/server/storage/sqlite"
	"gatewatch/internal/server/stream"
	"gatewatch/pkg/model"
)

// Config 是 server 进程的启动参数，cmd 层从环境变量和 flag 填好后传进来。
type Config struct {
	ListenAddr string
	DataDir    string
	RoutesFile string
	DBDriver   string
}

type Server struct {
	httpServer *http.Server
	store      storage.Store
	rec        *recorder.Recorder
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "/data"
	}
	if cfg.RoutesFile == "" {
		cfg.RoutesFile = filepath.Join(cfg.DataDir, "proxy-config.json")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败：%w", err)
	}

	store, err := openStore(cfg.DBDriver, cfg.DataDir)
	if err != nil {
		return nil, err
	}

	hub := stream.NewHub()
	rec, err := recorder.New(store, filepath.Join(cfg.DataDir, "connections.log"), hub)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	table := proxy.NewTable(loadRoutes(cfg.RoutesFile))
	core := proxy.NewCore(table, rec, dashboard.Handler())

	router := gin.New()
	router.Use(gin.Recovery(), core.Middleware())
	api.NewHandlers(store, table, hub).Register(router)
	router.NoRoute(core.Fallback())

	log.Printf("数据目录：%s（driver=%s）", cfg.DataDir, cfg.DBDriver)
	log.Printf("已配置 %d 条代理路由", table.Len())

	return &Server{
		store: store,
		rec:   rec,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	_ = s.httpServer.Shutdown(ctx)
	_ = s.rec.Close()
	return s.store.Close()
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

// loadRoutes 读路由配置。文件缺失或解析失败都不致命：
// 降级成没有任何代理路由的纯查询模式，问题留给日志。
func loadRoutes(path string) []model.Route {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("未加载路由配置 %s：%v", path, err)
		return nil
	}
	var routes []model.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		log.Printf("路由配置 %s 解析失败：%v", path, err)
		return nil
	}
	return routes
}
