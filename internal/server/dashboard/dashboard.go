package dashboard

import (
	"embed"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// Handler 返回内置仪表盘页面。页面只消费公开的查询端点，
// 部署方可以无视它、换成自己的前端。
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})
}
