package proxy

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gatewatch/pkg/model"
)

// connKey 是挂在 gin.Context 上的已提取客户端信息，避免兜底处理时二次提取。
const connKey = "proxy.connection"

// Sink 是记录落地接口，recorder.Recorder 实现它。
type Sink interface {
	Record(ctx context.Context, conn *model.Connection) error
}

// Core 是入口调度器：每个请求先记录客户端身份，再按 Host 决定去向。
// 命中路由就转发（HTTP 或 WebSocket 隧道），没命中交给后面的查询 API，
// API 也没有的走 Fallback。
type Core struct {
	table     *Table
	sink      Sink
	dashboard http.Handler
}

func NewCore(table *Table, sink Sink, dashboard http.Handler) *Core {
	return &Core{table: table, sink: sink, dashboard: dashboard}
}

// Middleware 返回装在全局链最前面的调度处理器。
func (c *Core) Middleware() gin.HandlerFunc {
	return func(gc *gin.Context) {
		r := gc.Request
		conn := ExtractClientInfo(r)
		gc.Set(connKey, conn)

		if err := c.sink.Record(r.Context(), &conn); err != nil {
			// 记录是尽力而为的旁路，失败不拦请求
			log.Printf("记录连接失败：%v", err)
		}
		log.Printf("%s (%s) -> %s %s %s", conn.ClientIP, conn.Country, conn.Host, conn.Method, conn.Path)

		entry, ok := c.table.Lookup(r.Host)
		if !ok {
			gc.Next()
			return
		}
		if IsWebSocketUpgrade(r) {
			c.tunnel(gc.Writer, r, entry)
		} else {
			entry.rp.ServeHTTP(gc.Writer, r)
		}
		gc.Abort()
	}
}

// Fallback 处理既没有路由也没有 API 命中的请求：
// 根路径交给内置仪表盘，其余路径返回访客自己的身份摘要。
func (c *Core) Fallback() gin.HandlerFunc {
	return func(gc *gin.Context) {
		r := gc.Request
		if r.URL.Path == "/" || r.URL.Path == "/dashboard" {
			c.dashboard.ServeHTTP(gc.Writer, r)
			return
		}

		conn, ok := gc.Get(connKey)
		info, _ := conn.(model.Connection)
		if !ok {
			info = ExtractClientInfo(r)
		}
		gc.String(http.StatusOK, "Your IP: %s\nCountry: %s\nHost: %s\nPath: %s\n",
			info.ClientIP, info.Country, info.Host, info.Path)
	}
}

// ExtractClientInfo 从请求头解析客户端身份，优先级固定：
// 边缘网络注入的 CF-Connecting-IP，其次 X-Forwarded-For 的第一项，
// 最后落到对端地址（去端口）。国家缺省用占位值。
func ExtractClientInfo(r *http.Request) model.Connection {
	clientIP := r.Header.Get("CF-Connecting-IP")
	if clientIP == "" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			clientIP = strings.TrimSpace(strings.Split(xff, ",")[0])
		} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			clientIP = host
		} else {
			clientIP = r.RemoteAddr
		}
	}

	country := r.Header.Get("CF-IPCountry")
	if country == "" {
		country = model.CountryUnknown
	}

	return model.Connection{
		Time:      time.Now(),
		ClientIP:  clientIP,
		Country:   country,
		Method:    r.Method,
		Path:      r.URL.Path,
		Host:      r.Host,
		UserAgent: r.Header.Get("User-Agent"),
		Referer:   r.Header.Get("Referer"),
	}
}

// IsWebSocketUpgrade 判断是否为 WebSocket 升级请求（token 不区分大小写）。
func IsWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
