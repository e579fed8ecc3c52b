package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config 全部从环境变量加载，默认值对应本地开发环境
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8081"`

	MySQLAddr string `envconfig:"MYSQL_ADDR" default:"root:root_password@tcp(127.0.0.1:3306)/hmdp?parseTime=true"`

	RedisAddr          string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisSentinelAddrs string `envconfig:"REDIS_SENTINEL_ADDRS" default:""`
	RedisMasterName    string `envconfig:"REDIS_MASTER_NAME" default:"mymaster"`

	OrderStreamKey string `envconfig:"ORDER_STREAM_KEY" default:"stream.orders"`
	OrderGroup     string `envconfig:"ORDER_GROUP" default:"g1"`
	OrderConsumers int    `envconfig:"ORDER_CONSUMERS" default:"2"`

	OrderLockTTL  time.Duration `envconfig:"ORDER_LOCK_TTL" default:"10s"`
	ReclaimIdle   time.Duration `envconfig:"RECLAIM_IDLE" default:"1m"`
	CacheRebuilds int           `envconfig:"CACHE_REBUILD_WORKERS" default:"10"`
}

func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
