package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 → ./.sv → ~/.sv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".sv")
		viper.AddConfigPath(filepath.Join(home, ".sv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 环境变量 (SV_STORAGE_PATH 等)
	viper.SetEnvPrefix("SV")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// 没有配置文件不算错 (可能全靠环境变量)；格式坏了才是错
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	home, _ := os.UserHomeDir()
	viper.SetDefault("storage.path", filepath.Join(home, ".sv"))

	// 可选的 Redis 存在性缓存，空串 = 不启用
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.redis_ttl", "24h")

	// 写操作后的确认扫描参数
	viper.SetDefault("sync.retry_attempts", 3)
	viper.SetDefault("sync.retry_backoff", "2s")
	viper.SetDefault("sync.reload_delay", "750ms")

	viper.SetDefault("convert.poll_interval", "2s")
}
