package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"gatewatch/pkg/model"
)

func Run(cfg Config) error {
	base, err := url.Parse(cfg.Server)
	if err != nil {
		return fmt.Errorf("server 参数非法：%w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}

	switch {
	case cfg.Stats:
		return showStats(client, base, cfg.Since)
	case cfg.Detail != "":
		return showDetail(client, base, cfg.Detail)
	default:
		return showConnections(client, base, cfg)
	}
}

func getJSON(client *http.Client, base *url.URL, path string, query url.Values, out interface{}) error {
	u := *base
	u.Path = path
	u.RawQuery = query.Encode()

	resp, err := client.Get(u.String())
	if err != nil {
		return fmt.Errorf("请求失败：%w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("查询失败：status=%s body=%s", resp.Status, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应 JSON 失败：%w", err)
	}
	return nil
}

func showConnections(client *http.Client, base *url.URL, cfg Config) error {
	q := url.Values{}
	if cfg.IP != "" {
		q.Set("ip", cfg.IP)
	}
	if cfg.Country != "" {
		q.Set("country", cfg.Country)
	}
	if cfg.Host != "" {
		q.Set("host", cfg.Host)
	}
	if cfg.Since != "" {
		q.Set("since", cfg.Since)
	}
	if cfg.Limit > 0 {
		q.Set("limit", strconv.Itoa(cfg.Limit))
	}

	var rows []model.Connection
	if err := getJSON(client, base, "/connections", q, &rows); err != nil {
		return err
	}

	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Time", "IP", "Country", "Method", "Path", "Host", "User-Agent"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)
	for _, r := range rows {
		t.Append([]string{r.Timestamp, r.ClientIP, r.Country, r.Method, r.Path, r.Host, r.UserAgent})
	}
	t.Render()
	return nil
}

func showStats(client *http.Client, base *url.URL, since string) error {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	var stats model.StatsOverview
	if err := getJSON(client, base, "/stats", q, &stats); err != nil {
		return err
	}

	fmt.Printf("总连接数：%d\n独立客户端：%d\n\n", stats.TotalConnections, stats.UniqueIPs)

	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"IP", "Country", "Hits", "First Seen", "Last Seen"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)
	for _, s := range stats.TopIPs {
		t.Append([]string{s.ClientIP, s.Country, strconv.Itoa(s.HitCount), s.FirstSeen, s.LastSeen})
	}
	t.Render()

	if len(stats.TopHosts) == 0 {
		return nil
	}
	// map 无序，按命中数排给人看
	type hostHits struct {
		host string
		hits int
	}
	hosts := make([]hostHits, 0, len(stats.TopHosts))
	for h, n := range stats.TopHosts {
		hosts = append(hosts, hostHits{h, n})
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].hits > hosts[j].hits })

	fmt.Println()
	ht := tablewriter.NewWriter(os.Stdout)
	ht.SetHeader([]string{"Host", "Hits"})
	ht.SetAutoWrapText(false)
	ht.SetRowLine(false)
	for _, h := range hosts {
		ht.Append([]string{h.host, strconv.Itoa(h.hits)})
	}
	ht.Render()
	return nil
}

func showDetail(client *http.Client, base *url.URL, ip string) error {
	var d model.IPDetail
	if err := getJSON(client, base, "/stats/ip/"+ip, url.Values{}, &d); err != nil {
		return err
	}

	fmt.Printf("IP：%s\n国家：%s\n命中：%d\n首次出现：%s\n最近出现：%s\n\n",
		d.Stats.ClientIP, d.Stats.Country, d.Stats.HitCount, d.Stats.FirstSeen, d.Stats.LastSeen)

	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader([]string{"Path", "Host"})
	t.SetAutoWrapText(false)
	t.SetRowLine(false)
	for _, p := range d.RecentPaths {
		t.Append([]string{p.Path, p.Host})
	}
	t.Render()
	return nil
}
