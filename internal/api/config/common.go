package config

// Config 配置主体
type Config struct {
	Server              ServerConfig        `mapstructure:"server"`
	DB                  DBConfig            `mapstructure:"database"`
	Redis               RedisConfig         `mapstructure:"redis"`
	Mongo               MongoConfig         `mapstructure:"mongo"`
	Logstash            LogstashConfig      `mapstructure:"logstash"`
	Security            SecurityConfig      `mapstructure:"security"`
	Kafka               KafkaConfig         `mapstructure:"kafka"`
	KafkaPostConsumer   KafkaPostConsumer   `mapstructure:"kafka_post_consumer"`
	KafkaFollowConsumer KafkaFollowConsumer `mapstructure:"kafka_follow_consumer"`
	Timeline            TimelineConfig      `mapstructure:"timeline"`
	Cron                CronConfig          `mapstructure:"cron"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver      string `mapstructure:"driver"` // mysql | postgres
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

type SecurityConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Producer ProducerConfig `mapstructure:"producer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int `mapstructure:"session_timeout"`
	HeartbeatInterval int `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int `mapstructure:"max_processing_time"`
}

type ProducerConfig struct {
	RetryMax int `mapstructure:"retry_max"`
	Timeout  int `mapstructure:"timeout"`
}

type KafkaPostConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

type KafkaFollowConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TimelineConfig 时间线物化相关配置
type TimelineConfig struct {
	Feed       FeedConfig       `mapstructure:"feed"`
	Fanout     FanoutConfig     `mapstructure:"fanout"`
	Backfill   BackfillConfig   `mapstructure:"backfill"`
	Counter    CounterConfig    `mapstructure:"counter"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter"`
}

type FeedConfig struct {
	DefaultPageSize int  `mapstructure:"default_page_size"`
	MaxPageSize     int  `mapstructure:"max_page_size"`
	Fallback        bool `mapstructure:"fallback"`
}

// RetryConfig 单位均为毫秒
type RetryConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts"`
	InitialInterval int `mapstructure:"initial_interval"`
	MaxInterval     int `mapstructure:"max_interval"`
}

type FanoutConfig struct {
	BatchSize   int         `mapstructure:"batch_size"`
	Concurrency int         `mapstructure:"concurrency"`
	Retry       RetryConfig `mapstructure:"retry"`
	SweepAfter  int         `mapstructure:"sweep_after"` // 秒
	SweepLimit  int         `mapstructure:"sweep_limit"`
}

type BackfillConfig struct {
	Window int         `mapstructure:"window"`
	Retry  RetryConfig `mapstructure:"retry"`
}

type CounterConfig struct {
	CacheTTL       int `mapstructure:"cache_ttl"` // 秒
	SweepBatchSize int `mapstructure:"sweep_batch_size"`
}

type DeadLetterConfig struct {
	Backend     string `mapstructure:"backend"` // mysql | mongo
	ReplayLimit int    `mapstructure:"replay_limit"`
	MaxReplays  int    `mapstructure:"max_replays"`
}

type CronConfig struct {
	CounterDirty     string `mapstructure:"counter_dirty"`
	CounterFull      string `mapstructure:"counter_full"`
	FanoutSweep      string `mapstructure:"fanout_sweep"`
	DeadLetterReplay string `mapstructure:"dead_letter_replay"`
}
