package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studysphere/studysphere/cmd/server/internal/models"
)

// roadmapRecord 关系库中的路线图行：查询字段单独成列，完整文档存 JSON 列
type roadmapRecord struct {
	ID        string         `gorm:"primaryKey;size:64"`
	UserID    string         `gorm:"size:128;not null;index:idx_roadmaps_user_created,priority:1"`
	Status    string         `gorm:"size:16;not null;index"`
	Version   int64          `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime:false;index:idx_roadmaps_user_created,priority:2"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false"`
	Document  datatypes.JSON `gorm:"not null"`
}

func (roadmapRecord) TableName() string {
	return "roadmaps"
}

// GormRepository 基于 gorm 的存储（postgres / sqlite）
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository 打开数据库连接并迁移表结构
func NewGormRepository(driver, dsn string) (*GormRepository, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// sqlite 单写者，多连接并发写会返回 SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormRepositoryFromDB(db)
}

// NewGormRepositoryFromDB 使用已有连接，便于测试注入
func NewGormRepositoryFromDB(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&roadmapRecord{}); err != nil {
		return nil, fmt.Errorf("migrate roadmaps: %w", err)
	}
	// postgres 与 sqlite 都支持部分索引
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_roadmaps_one_active ON roadmaps (user_id) WHERE status = 'active'",
	).Error; err != nil {
		return nil, fmt.Errorf("create active index: %w", err)
	}
	return &GormRepository{db: db}, nil
}

func toRecord(rm *models.Roadmap) (*roadmapRecord, error) {
	doc, err := json.Marshal(rm)
	if err != nil {
		return nil, fmt.Errorf("marshal roadmap: %w", err)
	}
	return &roadmapRecord{
		ID:        rm.ID,
		UserID:    rm.UserID,
		Status:    string(rm.Status),
		Version:   rm.Version,
		CreatedAt: rm.CreatedAt,
		UpdatedAt: rm.UpdatedAt,
		Document:  datatypes.JSON(doc),
	}, nil
}

func fromRecord(rec *roadmapRecord) (*models.Roadmap, error) {
	var rm models.Roadmap
	if err := json.Unmarshal(rec.Document, &rm); err != nil {
		return nil, fmt.Errorf("unmarshal roadmap %s: %w", rec.ID, err)
	}
	return &rm, nil
}

// Insert 写入新路线图
func (r *GormRepository) Insert(ctx context.Context, rm *models.Roadmap) error {
	rec, err := toRecord(rm)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("insert roadmap: %w", err)
	}
	return nil
}

// Get 读取路线图
func (r *GormRepository) Get(ctx context.Context, id string) (*models.Roadmap, error) {
	var rec roadmapRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get roadmap: %w", err)
	}
	return fromRecord(&rec)
}

// FindActiveByUser 查找用户的活跃路线图
func (r *GormRepository) FindActiveByUser(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("user_id = ? AND status = ?", userID, string(models.StatusActive)))
}

// ListByUser 列出用户全部路线图，最新的在前
func (r *GormRepository) ListByUser(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *GormRepository) find(ctx context.Context, q *gorm.DB) ([]*models.Roadmap, error) {
	var recs []roadmapRecord
	if err := q.Order("created_at DESC").Order("id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("find roadmaps: %w", err)
	}
	result := make([]*models.Roadmap, 0, len(recs))
	for i := range recs {
		rm, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		result = append(result, rm)
	}
	return result, nil
}

// ListActiveIDs 列出所有活跃路线图 ID
func (r *GormRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	err := r.db.WithContext(ctx).Model(&roadmapRecord{}).
		Where("status = ?", string(models.StatusActive)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list active roadmaps: %w", err)
	}
	return ids, nil
}

// Replace 以 (id, version) 为条件更新
func (r *GormRepository) Replace(ctx context.Context, rm *models.Roadmap, expectedVersion int64) error {
	rec, err := toRecord(rm)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&roadmapRecord{}).
		Where("id = ? AND version = ?", rm.ID, expectedVersion).
		Updates(map[string]any{
			"user_id":    rec.UserID,
			"status":     rec.Status,
			"version":    rec.Version,
			"updated_at": rec.UpdatedAt,
			"document":   rec.Document,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %v", ErrDuplicate, res.Error)
		}
		return fmt.Errorf("replace roadmap: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&roadmapRecord{}).Where("id = ?", rm.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("replace roadmap: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return fmt.Errorf("%w: expected %d", ErrVersionConflict, expectedVersion)
	}
	return nil
}

// Ping 检查数据库连接
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池
func (r *GormRepository) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
