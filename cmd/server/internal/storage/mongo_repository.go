package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/studysphere/studysphere/cmd/server/internal/models"
)

const roadmapsCollection = "roadmaps"

// MongoRepository MongoDB 文档存储
type MongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRepository 连接 MongoDB 并确保索引存在
func NewMongoRepository(ctx context.Context, uri, database string) (*MongoRepository, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	repo := &MongoRepository{
		client: client,
		coll:   client.Database(database).Collection(roadmapsCollection),
	}
	if err := repo.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

// ensureIndexes 创建查询索引和"每用户唯一活跃路线图"部分唯一索引
func (r *MongoRepository) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("user_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status"),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("one_active_per_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "status", Value: string(models.StatusActive)}}),
		},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create mongo indexes: %w", err)
	}
	return nil
}

// Insert 写入新路线图
func (r *MongoRepository) Insert(ctx context.Context, rm *models.Roadmap) error {
	if _, err := r.coll.InsertOne(ctx, rm); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("insert roadmap: %w", err)
	}
	return nil
}

// Get 读取路线图
func (r *MongoRepository) Get(ctx context.Context, id string) (*models.Roadmap, error) {
	var rm models.Roadmap
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rm)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get roadmap: %w", err)
	}
	return &rm, nil
}

// FindActiveByUser 查找用户的活跃路线图
func (r *MongoRepository) FindActiveByUser(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	return r.find(ctx, bson.M{"user_id": userID, "status": string(models.StatusActive)})
}

// ListByUser 列出用户全部路线图，最新的在前
func (r *MongoRepository) ListByUser(ctx context.Context, userID string) ([]*models.Roadmap, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]*models.Roadmap, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find roadmaps: %w", err)
	}
	defer cur.Close(ctx)

	result := make([]*models.Roadmap, 0)
	if err := cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("decode roadmaps: %w", err)
	}
	return result, nil
}

// ListActiveIDs 列出所有活跃路线图 ID
func (r *MongoRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"status": string(models.StatusActive)}, opts)
	if err != nil {
		return nil, fmt.Errorf("list active roadmaps: %w", err)
	}
	defer cur.Close(ctx)

	ids := make([]string, 0)
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode roadmap id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list active roadmaps: %w", err)
	}
	return ids, nil
}

// Replace 以 {_id, version} 为条件整体替换文档
func (r *MongoRepository) Replace(ctx context.Context, rm *models.Roadmap, expectedVersion int64) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": rm.ID, "version": expectedVersion}, rm)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("replace roadmap: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": rm.ID})
		if err != nil {
			return fmt.Errorf("replace roadmap: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return fmt.Errorf("%w: expected %d", ErrVersionConflict, expectedVersion)
	}
	return nil
}

// Ping 检查连接
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
