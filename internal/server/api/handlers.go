package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gatewatch/internal/server/proxy"
	"gatewatch/internal/server/storage"
	"gatewatch/pkg/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	topClientsLimit  = 100
	topHostsLimit    = 20
)

// Handlers 是查询面的一组端点。它们只挂在没有被路由占用的主机名下，
// 被代理站点的同名路径不受影响。
type Handlers struct {
	store  storage.Store
	table  *proxy.Table
	stream http.Handler
}

func NewHandlers(store storage.Store, table *proxy.Table, stream http.Handler) *Handlers {
	return &Handlers{store: store, table: table, stream: stream}
}

// Register 把所有查询端点挂到路由器上。
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/connections", h.Connections)
	r.GET("/stats", h.Stats)
	r.GET("/stats/ip/:ip", h.IPDetail)
	r.GET("/health", h.Health)
	r.GET("/config", h.Config)
	r.GET("/stream", h.Stream)
}

// Connections 按条件翻页查询原始记录。非法的 limit/offset 静默回退默认值。
func (h *Handlers) Connections(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	rows, err := h.store.List(c.Request.Context(), storage.Filter{
		ClientIP: c.Query("ip"),
		Country:  c.Query("country"),
		Host:     c.Query("host"),
		Since:    c.Query("since"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Stats 返回总量、独立客户端数、最活跃客户端和最热主机的汇总视图。
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	since := c.Query("since")

	top, err := h.store.TopClients(ctx, since, topClientsLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}
	total, unique, err := h.store.Totals(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}
	hosts, err := h.store.TopHosts(ctx, topHostsLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.StatsOverview{
		TotalConnections: total,
		UniqueIPs:        unique,
		TopIPs:           top,
		TopHosts:         hosts,
	})
}

// IPDetail 返回单个客户端的聚合统计与最近访问路径；没见过的 IP 返回 404。
func (h *Handlers) IPDetail(c *gin.Context) {
	d, err := h.store.ClientDetail(c.Request.Context(), c.Param("ip"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "IP not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Config 返回当前生效的路由表（host -> backend），用于核对线上配置。
func (h *Handlers) Config(c *gin.Context) {
	c.JSON(http.StatusOK, h.table.Backends())
}

// Stream 把连接升级成 WebSocket，实时推送新记录。
func (h *Handlers) Stream(c *gin.Context) {
	h.stream.ServeHTTP(c.Writer, c.Request)
}
