package main

import (
	"flag"
	"log"
	"os"

	"gatewatch/internal/client/app"
)

func main() {
	var cfg app.Config
	flag.StringVar(&cfg.Server, "server", "http://127.0.0.1:8080", "Server 地址")
	flag.StringVar(&cfg.IP, "ip", "", "按客户端 IP 过滤")
	flag.StringVar(&cfg.Country, "country", "", "按国家代码过滤")
	flag.StringVar(&cfg.Host, "host", "", "按请求 Host 过滤（子串匹配）")
	flag.StringVar(&cfg.Since, "since", "", "起始时间（格式 2006-01-02 15:04:05）")
	flag.IntVar(&cfg.Limit, "limit", 0, "返回条数上限，0 用服务端默认值")
	flag.BoolVar(&cfg.Stats, "stats", false, "显示全局统计")
	flag.StringVar(&cfg.Detail, "detail", "", "显示指定 IP 的详情")
	flag.Parse()

	if err := app.Run(cfg); err != nil {
		log.Printf("client 失败：%v", err)
		os.Exit(1)
	}
}
