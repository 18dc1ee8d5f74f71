package parse

import (
	"testing"
	"time"
)

func TestLine_JSON(t *testing.T) {
	line := `{"time":"2025-03-01T10:00:00Z","level":"info","message":"GET https://svc.example.com/login","originURL":"https://svc.example.com/login","clientIP":"203.0.113.7"}`
	conn, ok := Line(line)
	if !ok {
		t.Fatal("expected a record")
	}
	if conn.ClientIP != "203.0.113.7" {
		t.Errorf("ClientIP = %q", conn.ClientIP)
	}
	if conn.Host != "svc.example.com" {
		t.Errorf("Host = %q", conn.Host)
	}
	if conn.Path != "/login" {
		t.Errorf("Path = %q", conn.Path)
	}
	if conn.Method != "GET" {
		t.Errorf("Method = %q, want default GET", conn.Method)
	}
	if conn.Country != "" {
		t.Errorf("Country = %q, want empty on this path", conn.Country)
	}

	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).Local()
	if !conn.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", conn.Time, want)
	}
}

func TestLine_JSONAlternateKeys(t *testing.T) {
	line := `{"msg":"request","ip":"198.51.100.1","hostname":"app.example.com","path":"/x","method":"POST"}`
	conn, ok := Line(line)
	if !ok {
		t.Fatal("expected a record")
	}
	if conn.ClientIP != "198.51.100.1" || conn.Host != "app.example.com" {
		t.Errorf("record = %+v", conn)
	}
	if conn.Method != "POST" {
		t.Errorf("Method = %q", conn.Method)
	}
}

func TestLine_KeyValueMatchesJSON(t *testing.T) {
	jsonLine := `{"clientIP":"203.0.113.7","hostname":"svc.example.com","path":"/login"}`
	kvLine := `2025-03-01T10:00:00Z INF proxying request ip=203.0.113.7 host=svc.example.com path=/login`

	a, ok := Line(jsonLine)
	if !ok {
		t.Fatal("json line rejected")
	}
	b, ok := Line(kvLine)
	if !ok {
		t.Fatal("kv line rejected")
	}
	if a.ClientIP != b.ClientIP || a.Host != b.Host || a.Path != b.Path || a.Method != b.Method {
		t.Errorf("records differ:\njson: %+v\n  kv: %+v", a, b)
	}
}

func TestLine_SkipsInfrastructureNoise(t *testing.T) {
	lines := []string{
		`{"clientIP":"198.51.100.9","message":"Registered tunnel connection 3f2a"}`,
		`{"ip":"198.51.100.9","msg":"Initial protocol quic"}`,
		`2025-03-01T10:00:00Z INF Connection established ip=198.51.100.9`,
	}
	for _, line := range lines {
		if _, ok := Line(line); ok {
			t.Errorf("infrastructure line produced a record: %s", line)
		}
	}
}

func TestLine_DiscardsUselessLines(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"plain text without any markers",
		`{"level":"info","message":"shutting down"}`,
		`2025-03-01T10:00:00Z INF retrying method=GET path=/x`, // no ip and no host
	}
	for _, line := range lines {
		if conn, ok := Line(line); ok {
			t.Errorf("line %q produced %+v", line, conn)
		}
	}
}

func TestLine_MalformedJSONFallsThrough(t *testing.T) {
	line := `{broken json but ip=203.0.113.7 host=svc.example.com`
	conn, ok := Line(line)
	if !ok {
		t.Fatal("expected key=value fallback to match")
	}
	if conn.ClientIP != "203.0.113.7" || conn.Host != "svc.example.com" {
		t.Errorf("record = %+v", conn)
	}
}

func TestLine_HostnameOnly(t *testing.T) {
	conn, ok := Line(`{"hostname":"svc.example.com"}`)
	if !ok {
		t.Fatal("expected a record for hostname-only line")
	}
	if conn.Host != "svc.example.com" || conn.ClientIP != "" {
		t.Errorf("record = %+v", conn)
	}
	if conn.Method != "GET" {
		t.Errorf("Method = %q", conn.Method)
	}
}

func TestLine_OriginURLVariants(t *testing.T) {
	tests := []struct {
		origin   string
		wantHost string
		wantPath string
	}{
		{"https://svc.example.com/login", "svc.example.com", "/login"},
		{"https://svc.example.com:8443/login?x=1", "svc.example.com", "/login?x=1"},
		{"http://svc.example.com", "svc.example.com", ""},
		{"svc.example.com/deep/path", "svc.example.com", "/deep/path"},
	}
	for _, tt := range tests {
		conn, ok := Line(`{"clientIP":"1.1.1.1","originURL":"` + tt.origin + `"}`)
		if !ok {
			t.Fatalf("origin %q rejected", tt.origin)
		}
		if conn.Host != tt.wantHost {
			t.Errorf("origin %q host = %q, want %q", tt.origin, conn.Host, tt.wantHost)
		}
		if conn.Path != tt.wantPath {
			t.Errorf("origin %q path = %q, want %q", tt.origin, conn.Path, tt.wantPath)
		}
	}
}

func TestLine_ExplicitFieldsBeatOrigin(t *testing.T) {
	line := `{"clientIP":"1.1.1.1","originURL":"https://origin.example.com/from-url","hostname":"explicit.example.com","path":"/explicit"}`
	conn, ok := Line(line)
	if !ok {
		t.Fatal("expected a record")
	}
	if conn.Host != "explicit.example.com" || conn.Path != "/explicit" {
		t.Errorf("record = %+v", conn)
	}
}

func TestLine_BadTimestampFallsBackToNow(t *testing.T) {
	before := time.Now()
	conn, ok := Line(`{"time":"yesterday-ish","clientIP":"1.1.1.1"}`)
	if !ok {
		t.Fatal("expected a record")
	}
	if conn.Time.Before(before.Add(-time.Minute)) {
		t.Errorf("Time = %v, expected roughly now", conn.Time)
	}
}

func TestLine_IPv6Client(t *testing.T) {
	conn, ok := Line(`ip=2001:db8::1 host=svc.example.com`)
	if !ok {
		t.Fatal("expected a record")
	}
	if conn.ClientIP != "2001:db8::1" {
		t.Errorf("ClientIP = %q", conn.ClientIP)
	}
}
