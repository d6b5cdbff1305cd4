package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/pkg/logger"
)

const (
	defaultDataDir      = "data"
	roadmapsSubdir      = "roadmaps"
	temporaryFileSuffix = ".tmp"
)

// FileRepository 基于文件系统的存储，每个路线图一个 JSON 文件
// 单进程内通过 mu 保证版本比较与写入的原子性
type FileRepository struct {
	dir    string
	mu     sync.RWMutex
	logger *slog.Logger
}

// docHeader 列表查询只需要的字段，其余字段损坏不影响解析
type docHeader struct {
	ID     string               `json:"id"`
	UserID string               `json:"user_id"`
	Status models.RoadmapStatus `json:"status"`
	file   string
}

func (h docHeader) isActive() bool {
	return h.Status == models.StatusActive
}

// NewFileRepository 创建文件存储，目录不存在时自动创建
func NewFileRepository(dataDir string) (*FileRepository, error) {
	root := dataDir
	if strings.TrimSpace(root) == "" {
		root = defaultDataDir
	}
	dir := filepath.Join(root, roadmapsSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	return &FileRepository{
		dir:    dir,
		logger: logger.L().With("component", "file-repository"),
	}, nil
}

func (r *FileRepository) path(id string) (string, error) {
	seg, err := sanitizeSegment(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.dir, seg+".json"), nil
}

// Insert 写入新路线图，ID 已存在或用户已有活跃路线图时返回 ErrDuplicate
func (r *FileRepository) Insert(ctx context.Context, rm *models.Roadmap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(rm.ID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: id %s", ErrDuplicate, rm.ID)
	}
	if rm.IsActive() {
		headers, err := r.loadHeadersUnsafe()
		if err != nil {
			return err
		}
		for _, h := range headers {
			if h.UserID == rm.UserID && h.isActive() {
				return fmt.Errorf("%w: user %s already has active roadmap %s", ErrDuplicate, rm.UserID, h.ID)
			}
		}
	}
	return writeAtomic(path, rm)
}

// Get 读取路线图
func (r *FileRepository) Get(ctx context.Context, id string) (*models.Roadmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return readRoadmap(path)
}

// FindActiveByUser 查找用户的活跃路线图
func (r *FileRepository) FindActiveByUser(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	list, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]*models.Roadmap, 0, 1)
	for _, rm := range list {
		if rm.IsActive() {
			active = append(active, rm)
		}
	}
	return active, nil
}

// ListByUser 列出用户全部路线图，最新的在前
// 只完整解析属于该用户的文件，其他用户的损坏文件不影响结果
func (r *FileRepository) ListByUser(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	headers, err := r.loadHeadersUnsafe()
	if err != nil {
		return nil, err
	}

	result := make([]*models.Roadmap, 0)
	for _, h := range headers {
		if h.UserID != userID {
			continue
		}
		rm, err := readRoadmap(filepath.Join(r.dir, h.file))
		if err != nil {
			return nil, err
		}
		result = append(result, rm)
	}
	sortNewestFirst(result)
	return result, nil
}

// ListActiveIDs 列出所有活跃路线图 ID，只解析文档头
func (r *FileRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	headers, err := r.loadHeadersUnsafe()
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(headers))
	for _, h := range headers {
		if h.isActive() {
			ids = append(ids, h.ID)
		}
	}
	return ids, nil
}

// Replace 乐观锁写入
func (r *FileRepository) Replace(ctx context.Context, rm *models.Roadmap, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(rm.ID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := readRoadmap(path)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: expected %d, found %d", ErrVersionConflict, expectedVersion, current.Version)
	}
	return writeAtomic(path, rm)
}

// Ping 检查数据目录可访问
func (r *FileRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(r.dir)
	return err
}

// Close 文件存储无需释放资源
func (r *FileRepository) Close(ctx context.Context) error {
	return nil
}

// loadHeadersUnsafe 读取目录下所有路线图的文档头
// 文档头无法解析的文件记录告警后跳过
// 警告：调用此方法前必须已持有锁
func (r *FileRepository) loadHeadersUnsafe() ([]docHeader, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("读取数据目录失败: %w", err)
	}
	result := make([]docHeader, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			r.logger.Warn("skip unreadable roadmap file", "file", e.Name(), "error", err)
			continue
		}
		var h docHeader
		if err := json.Unmarshal(data, &h); err != nil {
			r.logger.Warn("skip undecodable roadmap file", "file", e.Name(), "error", err)
			continue
		}
		h.file = e.Name()
		if h.ID == "" {
			h.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		result = append(result, h)
	}
	return result, nil
}

func readRoadmap(path string) (*models.Roadmap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("读取roadmap文件失败: %w", err)
	}
	var rm models.Roadmap
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("解析roadmap文件失败 %s: %w", filepath.Base(path), err)
	}
	return &rm, nil
}

// writeAtomic 先写临时文件再 rename，避免读到半个文档
func writeAtomic(path string, rm *models.Roadmap) error {
	data, err := json.MarshalIndent(rm, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化roadmap失败: %w", err)
	}
	tmpPath := path + temporaryFileSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("写入roadmap文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("写入roadmap文件失败: %w", err)
	}
	return nil
}

func sanitizeSegment(seg string) (string, error) {
	trimmed := strings.TrimSpace(seg)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrInvalidIdentifier)
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return "", fmt.Errorf("%w: contains path separator", ErrInvalidIdentifier)
	}
	return trimmed, nil
}
