package storage

import (
	"context"
	"errors"

	"gatewatch/pkg/model"
)

// ErrNotFound 表示按 IP 查询时该客户端从未出现过，区别于查询本身失败。
var ErrNotFound = errors.New("storage: client not found")

// Filter 是 List 的筛选条件，零值字段表示不过滤。
// Since 与落库的时间字符串同格式，按字典序做下界比较（含边界）。
type Filter struct {
	ClientIP string
	Country  string
	Host     string // 子串匹配
	Since    string
	Limit    int
	Offset   int
}

// Store 是连接记录的持久化接口。两个实现（sqlite / duckdb）行为一致，
// 上层不感知差异。所有方法都要求并发安全。
type Store interface {
	// Insert 写入一条记录并回填 conn.ID。
	Insert(ctx context.Context, conn *model.Connection) error
	// List 按条件查询，时间倒序。
	List(ctx context.Context, f Filter) ([]model.Connection, error)
	// TopClients 按命中次数返回最活跃的客户端；since 非空时只统计该时刻之后的记录。
	TopClients(ctx context.Context, since string, limit int) ([]model.ClientStats, error)
	// Totals 返回总记录数与去重后的客户端数。
	Totals(ctx context.Context) (total int, uniqueIPs int, err error)
	// TopHosts 按命中次数返回最热的虚拟主机。
	TopHosts(ctx context.Context, limit int) (map[string]int, error)
	// ClientDetail 返回单个客户端的聚合统计与最近访问的路径；
	// 该 IP 无任何记录时返回 ErrNotFound。
	ClientDetail(ctx context.Context, ip string) (*model.IPDetail, error)
	Close() error
}
