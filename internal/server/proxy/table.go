package proxy

import (
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"gatewatch/pkg/model"
)

// Entry 是一条主机路由：目标后端、TLS 校验策略和预先构建好的反向代理。
type Entry struct {
	Host        string
	Backend     string
	BackendURL  *url.URL
	NoTLSVerify bool

	rp http.Handler
}

// Table 在启动时从路由配置构建一次，之后只读，查表不加锁。
type Table struct {
	entries map[string]*Entry
}

// NewTable 逐条解析路由。单条后端地址非法只跳过该条，其余路由照常生效。
// 同一主机出现多次时后一条覆盖前一条。
func NewTable(routes []model.Route) *Table {
	t := &Table{entries: make(map[string]*Entry, len(routes))}
	for _, rt := range routes {
		backendURL, err := url.Parse(rt.Backend)
		if err != nil || backendURL.Host == "" {
			log.Printf("路由 %s 的后端地址无效，跳过：%q（%v）", rt.Host, rt.Backend, err)
			continue
		}
		e := &Entry{
			Host:        normalizeHost(rt.Host),
			Backend:     rt.Backend,
			BackendURL:  backendURL,
			NoTLSVerify: rt.NoTLSVerify,
		}
		e.rp = newReverseProxy(backendURL, rt.NoTLSVerify)
		t.entries[e.Host] = e
		log.Printf("路由已配置：%s -> %s（noTLSVerify=%v）", e.Host, rt.Backend, rt.NoTLSVerify)
	}
	return t
}

// Lookup 按请求的 Host 头查路由；大小写与端口都不参与匹配。
func (t *Table) Lookup(host string) (*Entry, bool) {
	e, ok := t.entries[normalizeHost(host)]
	return e, ok
}

// Backends 返回 host -> backend 的快照，给 /config 端点用。
func (t *Table) Backends() map[string]string {
	out := make(map[string]string, len(t.entries))
	for h, e := range t.entries {
		out[h] = e.Backend
	}
	return out
}

func (t *Table) Len() int { return len(t.entries) }

// newReverseProxy 构建单后端反向代理。标准 Director 会把 Host 改写成后端地址，
// 这里在它之后把原始 Host 还原：同一个后端可能按虚拟主机承载多个站点。
func newReverseProxy(backendURL *url.URL, noTLSVerify bool) *httputil.ReverseProxy {
	rp := httputil.NewSingleHostReverseProxy(backendURL)
	director := rp.Director
	rp.Director = func(req *http.Request) {
		host := req.Host
		director(req)
		req.Host = host
	}
	if noTLSVerify {
		rp.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("转发 %s%s 到 %s 失败：%v", r.Host, r.URL.Path, backendURL.Host, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
	return rp
}

// normalizeHost 去掉端口并小写。没有端口的纯主机名 SplitHostPort 会报错，原样保留。
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
