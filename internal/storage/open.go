package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/finsurehub/finsurehub/internal/config"
	"github.com/finsurehub/finsurehub/internal/logx"
)

// Open 按 STORE_DRIVER 打开对应的存储，rdb 非空时套一层列表缓存
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.StoreDriver {
	case "file":
		s, err = NewFileStore(cfg.PostsFile)
	case "sqlite":
		s, err = OpenSQLite(cfg.SQLitePath)
	case "postgres":
		s, err = OpenPostgres(cfg.PostgresDSN)
	case "mysql":
		s, err = OpenMySQL(cfg.MySQLDSN)
	case "mongo":
		s, err = OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	logx.Infof("post store ready: driver=%s cache=%t", cfg.StoreDriver, rdb != nil)
	return WithCache(s, rdb), nil
}
