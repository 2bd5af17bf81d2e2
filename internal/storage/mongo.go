package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoPost 对应 articles 集合的文档，published 布尔值与 status 同时保存，
// 老数据只有 published 时以它为准
type mongoPost struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Slug            string             `bson:"slug"`
	Title           string             `bson:"title"`
	Category        string             `bson:"category"`
	Author          string             `bson:"author"`
	Content         string             `bson:"content"`
	Excerpt         string             `bson:"excerpt"`
	Image           string             `bson:"image"`
	Images          []string           `bson:"images"`
	MetaDescription string             `bson:"metaDescription"`
	ReadTime        string             `bson:"readTime"`
	Status          string             `bson:"status"`
	Published       bool               `bson:"published"`
	URL             string             `bson:"url,omitempty"`
	Date            time.Time          `bson:"date"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func toMongoPost(p Post, oid primitive.ObjectID) mongoPost {
	return mongoPost{
		ID:              oid,
		Slug:            p.Slug,
		Title:           p.Title,
		Category:        p.Category,
		Author:          p.Author,
		Content:         p.Content,
		Excerpt:         p.Excerpt,
		Image:           p.Image,
		Images:          p.Images,
		MetaDescription: p.MetaDescription,
		ReadTime:        p.ReadTime,
		Status:          string(p.Status),
		Published:       p.Published(),
		URL:             p.URL,
		Date:            p.Date,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (m mongoPost) toPost() Post {
	p := Post{
		ID:              m.ID.Hex(),
		Slug:            m.Slug,
		Title:           m.Title,
		Category:        m.Category,
		Author:          m.Author,
		Content:         m.Content,
		Excerpt:         m.Excerpt,
		Image:           m.Image,
		Images:          m.Images,
		MetaDescription: m.MetaDescription,
		ReadTime:        m.ReadTime,
		Status:          Status(m.Status),
		URL:             m.URL,
		Date:            m.Date,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if !p.Status.Valid() {
		p.Status = StatusDraft
		if m.Published {
			p.Status = StatusPublished
		}
	}
	if p.Date.IsZero() {
		p.Date = p.CreatedAt
	}
	return p
}

// MongoStore 使用 ObjectID（十六进制）作为文章 id
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	s := &MongoStore{client: client, coll: client.Database(database).Collection(collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "published", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "slug", Value: 1}}},
		{Keys: bson.D{{Key: "url", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]Post, error) {
	filter := bson.M{}
	switch f.Status {
	case StatusPublished:
		filter["published"] = true
	case StatusDraft:
		filter["published"] = bson.M{"$ne": true}
	}
	if f.Category != "" {
		filter["category"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.Category) + "$", Options: "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find articles: %w", err)
	}
	var docs []mongoPost
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	out := make([]Post, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toPost())
	}
	// 只有 createdAt 的旧文档 date 为空，排序需在内存中修正
	SortByDateDesc(out)
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (Post, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return Post{}, err
	}
	var doc mongoPost
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("find article %s: %w", id, err)
	}
	return doc.toPost(), nil
}

func (s *MongoStore) assignID(p *Post) (primitive.ObjectID, error) {
	if p.ID == "" {
		oid := primitive.NewObjectID()
		p.ID = oid.Hex()
		return oid, nil
	}
	return parseObjectID(p.ID)
}

func (s *MongoStore) Create(ctx context.Context, p *Post) error {
	oid, err := s.assignID(p)
	if err != nil {
		return err
	}
	prepareNew(p, time.Now())
	if _, err := s.coll.InsertOne(ctx, toMongoPost(*p, oid)); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, p Post) error {
	oid, err := parseObjectID(p.ID)
	if err != nil {
		return err
	}
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": oid}, toMongoPost(p, oid))
	if err != nil {
		return fmt.Errorf("replace article %s: %w", p.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete article %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) InsertMany(ctx context.Context, batch []Post) error {
	if len(batch) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]any, 0, len(batch))
	for i := range batch {
		oid, err := s.assignID(&batch[i])
		if err != nil {
			return err
		}
		prepareNew(&batch[i], now)
		docs = append(docs, toMongoPost(batch[i], oid))
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert articles: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
