package parse

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"gatewatch/pkg/model"
)

// 解析按策略链进行：先按 JSON 行解，解不开再按 key=value 提取，
// 谁先出结果用谁。两条路都走不通的行不是请求日志，丢弃。

// entry 对应隧道守护进程的 JSON 日志行，字段全部可选。
// message/msg 两个键在不同版本里都出现过；cfRay/traceId 是
// 守护进程自己的关联标识，解出来但不入库。
type entry struct {
	Time     string `json:"time"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	Msg      string `json:"msg"`
	Origin   string `json:"originURL"`
	ClientIP string `json:"clientIP"`
	IP       string `json:"ip"`
	CFRay    string `json:"cfRay"`
	TraceID  string `json:"traceId"`
	Hostname string `json:"hostname"`
	Path     string `json:"path"`
	Method   string `json:"method"`
}

// fields 是一行里提取到的原始要素，还没归一化。
type fields struct {
	Time     string
	Message  string
	Origin   string
	ClientIP string
	Hostname string
	Path     string
	Method   string
}

type extractor func(line string) (fields, bool)

var chain = []extractor{extractJSON, extractKeyValue}

var (
	ipPattern     = regexp.MustCompile(`(?:ip|clientIP|client_ip)=["']?([0-9a-fA-F.:]+)["']?`)
	hostPattern   = regexp.MustCompile(`(?:host|hostname)=["']?([a-zA-Z0-9.-]+)["']?`)
	pathPattern   = regexp.MustCompile(`(?:path|uri|url)=["']?([^\s"']+)["']?`)
	methodPattern = regexp.MustCompile(`method=["']?([A-Z]+)["']?`)
)

// skipPhrases 标记守护进程自身的基础设施日志，这些行带着 IP 却不是客户端请求。
var skipPhrases = []string{
	"Registered tunnel connection",
	"Initial protocol",
	"Connection established",
}

// Line 解析一行守护进程日志。第二个返回值为 false 表示该行不构成连接记录。
func Line(line string) (*model.Connection, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	var f fields
	ok := false
	for _, ex := range chain {
		if f, ok = ex(line); ok {
			break
		}
	}
	if !ok {
		return nil, false
	}
	return normalize(f)
}

func extractJSON(line string) (fields, bool) {
	if !strings.HasPrefix(line, "{") {
		return fields{}, false
	}
	var e entry
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return fields{}, false
	}
	msg := e.Message
	if msg == "" {
		msg = e.Msg
	}
	ip := e.ClientIP
	if ip == "" {
		ip = e.IP
	}
	return fields{
		Time:     e.Time,
		Message:  msg,
		Origin:   e.Origin,
		ClientIP: ip,
		Hostname: e.Hostname,
		Path:     e.Path,
		Method:   e.Method,
	}, true
}

// extractKeyValue 在非 JSON 行里找 key=value 形式的要素。
// 消息字段取整行，让丢弃检查照常生效。
func extractKeyValue(line string) (fields, bool) {
	f := fields{Message: line}
	found := false
	if m := ipPattern.FindStringSubmatch(line); m != nil {
		f.ClientIP = m[1]
		found = true
	}
	if m := hostPattern.FindStringSubmatch(line); m != nil {
		f.Hostname = m[1]
		found = true
	}
	if m := pathPattern.FindStringSubmatch(line); m != nil {
		f.Path = m[1]
		found = true
	}
	if m := methodPattern.FindStringSubmatch(line); m != nil {
		f.Method = m[1]
		found = true
	}
	return f, found
}

// normalize 把提取到的要素变成一条连接记录，或者确定这行不值得记。
func normalize(f fields) (*model.Connection, bool) {
	if f.ClientIP == "" && f.Hostname == "" && f.Origin == "" {
		return nil, false
	}
	for _, phrase := range skipPhrases {
		if strings.Contains(f.Message, phrase) {
			return nil, false
		}
	}

	host := f.Hostname
	if host == "" && f.Origin != "" {
		host = hostFromURL(f.Origin)
	}
	path := f.Path
	if path == "" && f.Origin != "" {
		path = pathFromURL(f.Origin)
	}
	method := f.Method
	if method == "" {
		method = "GET"
	}

	ts := time.Now()
	if f.Time != "" {
		if t, err := time.Parse(time.RFC3339, f.Time); err == nil {
			ts = t.Local()
		}
	}

	// 外部守护进程的日志里没有国家信息，这条路径上 country 一律留空
	return &model.Connection{
		Time:     ts,
		ClientIP: f.ClientIP,
		Method:   method,
		Path:     path,
		Host:     host,
	}, true
}

// hostFromURL 从原始 URL 里抠出主机名：去 scheme、去路径、去端口。
func hostFromURL(raw string) string {
	host := strings.TrimPrefix(raw, "https://")
	host = strings.TrimPrefix(host, "http://")
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

func pathFromURL(raw string) string {
	rest := strings.TrimPrefix(raw, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[i:]
	}
	return ""
}
