package config

import (
	"fmt"
	"time"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
	Test Environment = "test"
)

type DiscussConfig struct {
	Env         Environment `koanf:"env"`
	Addr        string      `koanf:"addr"`
	PrivateAddr string      `koanf:"private_addr"`
	LogLevel    string      `koanf:"log_level"` // any level zerolog.ParseLevel understands

	Postgres PostgresConfig `koanf:"postgres"`
	Cache    CacheConfig    `koanf:"cache"`
	Locks    LockConfig     `koanf:"locks"`
	Votes    VoteConfig     `koanf:"votes"`
	Redis    RedisConfig    `koanf:"redis"`
	NATS     NATSConfig     `koanf:"nats"`
}

type PostgresConfig struct {
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Hostname string `koanf:"hostname"`
	Port     int    `koanf:"port"`
	DbName   string `koanf:"dbname"`
	LogLevel string `koanf:"log_level"` // pgx tracelog level: trace, debug, info, warn, error, none
	MinConn  int32  `koanf:"min_conn"`
	MaxConn  int32  `koanf:"max_conn"`
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

type CacheConfig struct {
	// Maximum number of topics whose trees are kept in memory.
	MaxTopics int `koanf:"max_topics"`
}

type LockConfig struct {
	// Upper bound on how long a mutation waits for its topic lock before giving up.
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
}

type VoteConfig struct {
	// Zero disables the background reconciliation job.
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
}

type RedisConfig struct {
	Addr        string        `koanf:"addr"` // empty disables the identity cache
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	AuthorTTL   time.Duration `koanf:"author_ttl"`
	KeyPrefix   string        `koanf:"key_prefix"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

type NATSConfig struct {
	URL           string        `koanf:"url"` // empty disables cross-process invalidation
	Subject       string        `koanf:"subject"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}
