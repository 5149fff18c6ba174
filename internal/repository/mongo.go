package repository

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
	"go.uber.org/zap"

	"nexus/internal/model"
	"nexus/pkg/config"
	"nexus/pkg/otel"
)

const (
	projectsCollection = "projects"
	usersCollection    = "users"
)

// ConnectMongo opens a client and verifies it with a ping.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("MongoDB connected", zap.String("database", cfg.Database))
	return client, nil
}

// MongoStore implements ProjectStore on a projects collection; Users returns
// the UserStore backed by the users collection of the same database.
type MongoStore struct {
	db       *mongo.Database
	projects *mongo.Collection
	users    *mongo.Collection
	logger   *zap.Logger
}

func NewMongoStore(db *mongo.Database, logger *zap.Logger) *MongoStore {
	return &MongoStore{
		db:       db,
		projects: db.Collection(projectsCollection),
		users:    db.Collection(usersCollection),
		logger:   logger,
	}
}

// EnsureIndexes creates the unique email index and the lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users email index: %w", err)
	}
	_, err = s.projects.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		{Keys: bson.D{{Key: "teamMembers", Value: 1}}},
		{Keys: bson.D{{Key: "github.repoOwner", Value: 1}, {Key: "github.repoName", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("projects indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Users() UserStore {
	return mongoUsers{s}
}

func (s *MongoStore) Create(ctx context.Context, p *model.Project) error {
	p.Version = 1
	return otel.Mongo(ctx, "insert", projectsCollection, func(ctx context.Context) error {
		if _, err := s.projects.InsertOne(ctx, p); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("project %s: %w", p.ID, model.ErrConflict)
			}
			return fmt.Errorf("insert project: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := otel.Mongo(ctx, "find", projectsCollection, func(ctx context.Context) error {
		return s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) ListForUser(ctx context.Context, userID, email string) ([]*model.Project, error) {
	or := bson.A{
		bson.M{"createdBy": userID},
		bson.M{"teamMembers": userID},
	}
	if email != "" {
		or = append(or, bson.M{"teamMembers": exactFold(email)})
	}
	return s.find(ctx, bson.M{"$or": or})
}

func (s *MongoStore) FindByRepo(ctx context.Context, owner, name string) ([]*model.Project, error) {
	return s.find(ctx, bson.M{
		"github.repoOwner": exactFold(owner),
		"github.repoName":  exactFold(name),
	})
}

func (s *MongoStore) find(ctx context.Context, filter bson.M) ([]*model.Project, error) {
	var out []*model.Project
	err := otel.Mongo(ctx, "find", projectsCollection, func(ctx context.Context) error {
		cur, err := s.projects.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
		if err != nil {
			return err
		}
		return cur.All(ctx, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("find projects: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Save(ctx context.Context, p *model.Project) error {
	expected := p.Version
	next := *p
	next.Version = expected + 1
	next.ExecutiveBrief = nil

	var matched int64
	err := otel.Mongo(ctx, "update", projectsCollection, func(ctx context.Context) error {
		update, err := projectUpdate(&next)
		if err != nil {
			return err
		}
		res, err := s.projects.UpdateOne(ctx,
			bson.M{"_id": p.ID, "version": expected},
			update,
		)
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if matched == 0 {
		n, err := s.projects.CountDocuments(ctx, bson.M{"_id": p.ID})
		if err != nil {
			return fmt.Errorf("save project: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("project %s: %w", p.ID, model.ErrNotFound)
		}
		return fmt.Errorf("project %s version %d: %w", p.ID, expected, model.ErrVersionConflict)
	}
	p.Version = next.Version
	return nil
}

// optionalProjectKeys are omitted from the marshalled document when nil, so a
// cleared value has to be removed with $unset.
var optionalProjectKeys = []string{"github", "startDate", "endDate"}

// projectUpdate builds the update document for Save. The brief is written
// only by SaveBrief and is left untouched.
func projectUpdate(next *model.Project) (bson.M, error) {
	doc, err := bson.Marshal(next)
	if err != nil {
		return nil, err
	}
	var fields bson.M
	if err := bson.Unmarshal(doc, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")
	delete(fields, "executiveBrief")

	update := bson.M{"$set": fields}
	unset := bson.M{}
	for _, key := range optionalProjectKeys {
		if _, ok := fields[key]; !ok {
			unset[key] = ""
		}
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update, nil
}

func (s *MongoStore) SaveBrief(ctx context.Context, id string, brief model.ExecutiveBrief) error {
	var matched int64
	err := otel.Mongo(ctx, "update", projectsCollection, func(ctx context.Context) error {
		res, err := s.projects.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$set": bson.M{"executiveBrief": brief}},
		)
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("save brief: %w", err)
	}
	if matched == 0 {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	var deleted int64
	err := otel.Mongo(ctx, "delete", projectsCollection, func(ctx context.Context) error {
		res, err := s.projects.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("project %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

type mongoUsers struct {
	s *MongoStore
}

func (u mongoUsers) Create(ctx context.Context, user *model.User) error {
	err := otel.Mongo(ctx, "insert", usersCollection, func(ctx context.Context) error {
		_, err := u.s.users.InsertOne(ctx, user)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("email %s: %w", user.Email, model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (u mongoUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.findOne(ctx, bson.M{"_id": id}, id)
}

func (u mongoUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.findOne(ctx, bson.M{"email": exactFold(email)}, email)
}

func (u mongoUsers) findOne(ctx context.Context, filter bson.M, key string) (*model.User, error) {
	var user model.User
	err := otel.Mongo(ctx, "find", usersCollection, func(ctx context.Context) error {
		return u.s.users.FindOne(ctx, filter).Decode(&user)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user %s: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (u mongoUsers) Update(ctx context.Context, user *model.User) error {
	var matched int64
	err := otel.Mongo(ctx, "replace", usersCollection, func(ctx context.Context) error {
		res, err := u.s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if matched == 0 {
		return fmt.Errorf("user %s: %w", user.ID, model.ErrNotFound)
	}
	return nil
}

// exactFold matches a whole string case-insensitively.
func exactFold(s string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
}
