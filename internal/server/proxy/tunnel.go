package proxy

import (
	"crypto/tls"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/jpillora/sizestr"
)

// tunnel 执行 WebSocket 接管：反向代理的响应抽象盖不住 Upgrade 之后的
// 双向字节流，这里直接劫持客户端底层连接，与后端之间做纯粹的字节转发。
func (c *Core) tunnel(w http.ResponseWriter, r *http.Request, e *Entry) {
	id := uuid.New().String()

	backendConn, err := dialBackend(e)
	if err != nil {
		log.Printf("ws 隧道 %s：拨号后端 %s 失败：%v", id, e.BackendURL.Host, err)
		http.Error(w, "Backend connection failed", http.StatusBadGateway)
		return
	}
	defer backendConn.Close()

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "Hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, clientBuf, err := hj.Hijack()
	if err != nil {
		log.Printf("ws 隧道 %s：劫持客户端连接失败：%v", id, err)
		http.Error(w, "Hijack failed", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	// 把升级请求原样重放给后端：只换网络目标，Host 头保持原虚拟主机。
	r.URL.Host = e.BackendURL.Host
	r.URL.Scheme = e.BackendURL.Scheme
	r.RequestURI = ""
	if err := r.Write(backendConn); err != nil {
		log.Printf("ws 隧道 %s：重放升级请求失败：%v", id, err)
		return
	}

	log.Printf("ws 隧道 %s 建立：%s%s -> %s", id, r.Host, r.URL.Path, e.BackendURL.Host)

	// 两个方向各自拷贝。任一方向结束就关掉两端，另一个方向随之解除阻塞，
	// 等它也退出后再汇总字节数。
	var up, down int64
	done := make(chan struct{}, 2)
	go func() {
		// 客户端侧从劫持时的缓冲读，已缓冲的字节不能丢
		up, _ = io.Copy(backendConn, clientBuf)
		done <- struct{}{}
	}()
	go func() {
		down, _ = io.Copy(clientConn, backendConn)
		done <- struct{}{}
	}()
	<-done
	clientConn.Close()
	backendConn.Close()
	<-done

	log.Printf("ws 隧道 %s 关闭：上行 %s，下行 %s", id, sizestr.ToString(up), sizestr.ToString(down))
}

// dialBackend 按后端 scheme 建立出站连接，https/wss 走 TLS，
// 是否跳过证书校验由该条路由决定。URL 不带端口时按 scheme 补默认端口。
func dialBackend(e *Entry) (net.Conn, error) {
	secure := e.BackendURL.Scheme == "https" || e.BackendURL.Scheme == "wss"
	addr := e.BackendURL.Host
	if e.BackendURL.Port() == "" {
		port := "80"
		if secure {
			port = "443"
		}
		addr = net.JoinHostPort(e.BackendURL.Hostname(), port)
	}
	if secure {
		return tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: e.NoTLSVerify})
	}
	return net.Dial("tcp", addr)
}
