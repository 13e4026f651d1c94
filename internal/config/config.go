// Package config loads dbstructure settings from a YAML file, an optional
// .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/filestore"
	"github.com/Unlink/database/internal/logger"
)

// DefaultFile is read when no explicit path is given. A missing default
// file is not an error.
const DefaultFile = "dbstructure.yaml"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheMinIO  = "minio"
)

type DatabaseConfig struct {
	Driver string `yaml:"driver"`

	// DSN wins over the discrete fields below when set.
	DSN string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`

	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
}

type CacheConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
	MinIO   MinIOConfig `yaml:"minio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend: CacheMemory,
			MinIO:   MinIOConfig{Bucket: "dbstructure"},
		},
		Log:    LogConfig{Level: "info", Format: "json"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads path (or DefaultFile when empty), then .env, then the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		file = DefaultFile
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == "":
		// no default file; rely on the environment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("REDIS_ADDR", &c.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("MINIO_ENDPOINT", &c.Cache.MinIO.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Cache.MinIO.AccessKey)
	str("MINIO_SECRET_KEY", &c.Cache.MinIO.SecretKey)
	str("MINIO_BUCKET", &c.Cache.MinIO.Bucket)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SERVER_ADDR", &c.Server.Addr)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Cache.Redis.DB = db
	}
	if v, ok := lookup("MINIO_USE_SSL"); ok && v != "" {
		useSSL, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MINIO_USE_SSL: %w", err)
		}
		c.Cache.MinIO.UseSSL = useSSL
	}
	return nil
}

// DatabaseConfig returns connection settings for database.Open, building a
// DSN from the discrete fields when none is set.
func (c *Config) DatabaseConfig() (*database.Config, error) {
	driver := database.NormalizeDriver(c.Database.Driver)
	dsn, err := c.Database.BuildDSN()
	if err != nil {
		return nil, err
	}

	cfg := database.DefaultConfig(driver, dsn)
	if c.Database.MaxConns > 0 {
		cfg.MaxConns = c.Database.MaxConns
	}
	if c.Database.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.Database.ConnectTimeout
	}
	return cfg, nil
}

// BuildDSN returns DSN or assembles one for the configured driver.
func (d DatabaseConfig) BuildDSN() (string, error) {
	if d.DSN != "" {
		return d.DSN, nil
	}

	switch database.NormalizeDriver(d.Driver) {
	case database.DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.Username, d.Password),
			Host:     d.hostPort(5432),
			Path:     "/" + d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case database.DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = d.Username
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = d.hostPort(3306)
		cfg.DBName = d.Name
		return cfg.FormatDSN(), nil
	case database.DriverSQLite:
		if d.Name == "" {
			return "", errors.New("sqlite needs a file path in database.name")
		}
		return fmt.Sprintf("file:%s?mode=ro", d.Name), nil
	case database.DriverSQLServer:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(d.Username, d.Password),
			Host:     d.hostPort(1433),
			RawQuery: url.Values{"database": {d.Name}}.Encode(),
		}
		return u.String(), nil
	case "":
		return "", errors.New("database.driver is required")
	default:
		return "", fmt.Errorf("unsupported database driver: %s", d.Driver)
	}
}

func (d DatabaseConfig) hostPort(defaultPort int) string {
	port := defaultPort
	if d.Port > 0 {
		port = d.Port
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// LoggerConfig returns settings for logger.New.
func (c *Config) LoggerConfig() *logger.Config {
	cfg := logger.DefaultConfig()
	if c.Log.Level != "" {
		cfg.Level = strings.ToLower(c.Log.Level)
	}
	if c.Log.Format != "" {
		cfg.Format = strings.ToLower(c.Log.Format)
	}
	return cfg
}

// FileStoreConfig returns settings for the MinIO cache backend.
func (c *Config) FileStoreConfig() *filestore.Config {
	m := c.Cache.MinIO
	cfg := filestore.DefaultConfig(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket)
	cfg.UseSSL = m.UseSSL
	cfg.Region = m.Region
	return cfg
}
