package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv 读取 .env（可选）；ENV_FILE 可指定其他路径。已存在的环境变量不会被覆盖。
// 在 logger 初始化之前调用，所以只返回错误，由调用方记录
func LoadEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
