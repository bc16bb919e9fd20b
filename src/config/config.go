package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Development defaults. Live deployments override these with a config file
// and/or environment variables; see Load.
var Config = DiscussConfig{
	Env:         Dev,
	Addr:        ":9001",
	PrivateAddr: "127.0.0.1:9002",
	LogLevel:    "info",
	Postgres: PostgresConfig{
		User:     "discuss",
		Password: "password",
		Hostname: "localhost",
		Port:     5432,
		DbName:   "discuss",
		LogLevel: "warn",
		MinConn:  2,
		MaxConn:  8,
	},
	Cache: CacheConfig{
		MaxTopics: 2000,
	},
	Locks: LockConfig{
		AcquireTimeout: 5 * time.Second,
	},
	Votes: VoteConfig{
		ReconcileInterval: 15 * time.Minute,
	},
	Redis: RedisConfig{
		AuthorTTL:   10 * time.Minute,
		KeyPrefix:   "discuss:author:",
		DialTimeout: 2 * time.Second,
	},
	NATS: NATSConfig{
		Subject:       "discuss.invalidate",
		MaxReconnects: 5,
		ReconnectWait: 2 * time.Second,
	},
}

const EnvPrefix = "DISCUSS_"

/*
Loads overrides on top of the compiled-in defaults, in this order:

  - a .env file in the working directory, if present, is loaded into the environment
  - the YAML file at path, if path is non-empty
  - DISCUSS_-prefixed environment variables

Environment variable names map onto config keys by stripping the prefix,
lowercasing, and treating a double underscore as a section separator, so
DISCUSS_POSTGRES__LOG_LEVEL sets postgres.log_level.

Keys that are not mentioned anywhere keep their default value.
*/
func Load(path string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return err
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return err
	}

	return k.Unmarshal("", &Config)
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
