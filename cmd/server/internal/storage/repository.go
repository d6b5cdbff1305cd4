package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/studysphere/studysphere/cmd/server/internal/config"
	"github.com/studysphere/studysphere/cmd/server/internal/models"
)

var (
	// ErrNotFound 表示路线图文档不存在。
	ErrNotFound = errors.New("roadmap not found")
	// ErrVersionConflict 表示写入时存储中的版本与期望版本不一致。
	ErrVersionConflict = errors.New("roadmap version conflict")
	// ErrDuplicate 表示主键或"每用户唯一活跃路线图"约束冲突。
	ErrDuplicate = errors.New("roadmap already exists")
	// ErrInvalidIdentifier 表示标识不合法。
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Repository 路线图文档存储，一个路线图对应一个文档
//
// Replace 是唯一的更新入口：仅当存储中的 version 等于 expectedVersion 时写入，
// 调用方负责在写入前递增 r.Version。
type Repository interface {
	Insert(ctx context.Context, r *models.Roadmap) error
	Get(ctx context.Context, id string) (*models.Roadmap, error)
	FindActiveByUser(ctx context.Context, userID string) ([]*models.Roadmap, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Roadmap, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
	Replace(ctx context.Context, r *models.Roadmap, expectedVersion int64) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open 根据配置创建存储实现
func Open(ctx context.Context, cfg config.StorageConfig) (Repository, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileRepository(cfg.DataDir)
	case "mongo":
		return NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "postgres", "sqlite":
		return NewGormRepository(cfg.Driver, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// sortNewestFirst 按创建时间倒序，时间相同时按 ID 排序保证稳定
func sortNewestFirst(list []*models.Roadmap) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
