package model

import "time"

// TimeLayout 是落库、日志行和 API 输出统一使用的时间格式：
// 秒级精度，且同格式字符串可以直接按字典序比较时间先后。
const TimeLayout = "2006-01-02 15:04:05"

// CountryUnknown 是上游没有带国家信息时的占位值。
const CountryUnknown = "XX"

// Connection 是一次被观测到的客户端连接，系统审计数据的基本单位。
// Time 只在进程内使用，持久化与序列化都走 Timestamp 字符串。
type Connection struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"-"`
	Timestamp string    `json:"timestamp"`
	ClientIP  string    `json:"client_ip"`
	Country   string    `json:"country"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Host      string    `json:"host"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// ClientStats 是单个客户端 IP 的聚合统计。
type ClientStats struct {
	ClientIP  string `json:"client_ip"`
	Country   string `json:"country"`
	HitCount  int    `json:"hit_count"`
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
}

// PathHost 是某客户端访问过的一个 (path, host) 组合。
type PathHost struct {
	Path string `json:"path"`
	Host string `json:"host"`
}

// StatsOverview 是 /stats 的响应体。
type StatsOverview struct {
	TotalConnections int            `json:"total_connections"`
	UniqueIPs        int            `json:"unique_ips"`
	TopIPs           []ClientStats  `json:"top_ips"`
	TopHosts         map[string]int `json:"top_hosts"`
}

// IPDetail 是 /stats/ip/{ip} 的响应体。
type IPDetail struct {
	Stats       ClientStats `json:"stats"`
	RecentPaths []PathHost  `json:"recent_paths"`
}

// Route 是路由配置文件里的一条映射：虚拟主机 -> 后端地址。
type Route struct {
	Host        string `json:"host"`
	Backend     string `json:"backend"`
	NoTLSVerify bool   `json:"no_tls_verify,omitempty"`
}
