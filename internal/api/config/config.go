package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.SetEnvPrefix("TIMELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// Default 返回仅包含默认值的配置，供测试和命令行工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_open", 100)
	v.SetDefault("database.max_lifetime", 60)
	v.SetDefault("security.issuer", "Timeline")
	v.SetDefault("kafka.consumer.session_timeout", 10)
	v.SetDefault("kafka.consumer.heartbeat_interval", 3)
	v.SetDefault("kafka.consumer.rebalance_timeout", 60)
	v.SetDefault("kafka.consumer.max_processing_time", 30)
	v.SetDefault("kafka.producer.retry_max", 3)
	v.SetDefault("kafka.producer.timeout", 5)
	v.SetDefault("kafka_post_consumer.topic", "timeline-posts")
	v.SetDefault("kafka_post_consumer.group_id", "timeline-fanout")
	v.SetDefault("kafka_follow_consumer.topic", "timeline-follows")
	v.SetDefault("kafka_follow_consumer.group_id", "timeline-backfill")

	v.SetDefault("timeline.feed.default_page_size", 20)
	v.SetDefault("timeline.feed.max_page_size", 100)
	v.SetDefault("timeline.feed.fallback", true)
	v.SetDefault("timeline.fanout.batch_size", 500)
	v.SetDefault("timeline.fanout.concurrency", 8)
	v.SetDefault("timeline.fanout.retry.max_attempts", 5)
	v.SetDefault("timeline.fanout.retry.initial_interval", 100)
	v.SetDefault("timeline.fanout.retry.max_interval", 5000)
	v.SetDefault("timeline.fanout.sweep_after", 300)
	v.SetDefault("timeline.fanout.sweep_limit", 200)
	v.SetDefault("timeline.backfill.window", 50)
	v.SetDefault("timeline.backfill.retry.max_attempts", 5)
	v.SetDefault("timeline.backfill.retry.initial_interval", 100)
	v.SetDefault("timeline.backfill.retry.max_interval", 5000)
	v.SetDefault("timeline.counter.cache_ttl", 60)
	v.SetDefault("timeline.counter.sweep_batch_size", 500)
	v.SetDefault("timeline.dead_letter.backend", "mysql")
	v.SetDefault("timeline.dead_letter.replay_limit", 100)
	v.SetDefault("timeline.dead_letter.max_replays", 10)

	v.SetDefault("cron.counter_dirty", "0 * * * * *")
	v.SetDefault("cron.counter_full", "0 30 3 * * *")
	v.SetDefault("cron.fanout_sweep", "30 * * * * *")
	v.SetDefault("cron.dead_letter_replay", "0 */5 * * * *")
}
