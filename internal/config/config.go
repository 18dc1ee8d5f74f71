package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config 是从环境变量读出的进程级配置，server 与 agent 共用。
// 命令行 flag 以这里的值为缺省值，显式传参时覆盖。
type Config struct {
	DataDir    string
	Port       string
	RoutesFile string
	DBDriver   string
}

// Load 读取 .env 并合并环境变量。
// .env 只是本地开发的便利项，线上直接注入环境变量，文件缺失不算错误。
func Load() *Config {
	_ = godotenv.Load(".env")

	dataDir := cast.ToString(coalesce("DATA_DIR", "/data"))
	return &Config{
		DataDir:    dataDir,
		Port:       cast.ToString(coalesce("PORT", "8080")),
		RoutesFile: cast.ToString(coalesce("PROXY_CONFIG", filepath.Join(dataDir, "proxy-config.json"))),
		DBDriver:   cast.ToString(coalesce("DB_DRIVER", "sqlite")),
	}
}

func coalesce(key string, def interface{}) interface{} {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}
