package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"livescore/internal/livescore/model"
)

// MongoMatchStore is the matches collection. The unique index on external_id
// is created by helper.ConnectMongo.
type MongoMatchStore struct {
	Coll *mongo.Collection
}

func NewMongoMatchStore(coll *mongo.Collection) *MongoMatchStore {
	return &MongoMatchStore{Coll: coll}
}

func (s *MongoMatchStore) FindByExternalID(ctx context.Context, externalID string) (*model.MatchSnapshot, error) {
	return s.findOne(ctx, bson.M{"external_id": externalID})
}

func (s *MongoMatchStore) FindByID(ctx context.Context, id string) (*model.MatchSnapshot, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *MongoMatchStore) findOne(ctx context.Context, filter bson.M) (*model.MatchSnapshot, error) {
	var m model.MatchSnapshot
	err := s.Coll.FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoMatchStore) Insert(ctx context.Context, m *model.MatchSnapshot) error {
	res, err := s.Coll.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid
	}
	return nil
}

func (s *MongoMatchStore) UpdateFields(ctx context.Context, id string, patch model.MatchPatch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = s.Coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": patch})
	return err
}

func (s *MongoMatchStore) Find(ctx context.Context, q Query) ([]model.MatchSnapshot, error) {
	opts := options.Find()
	switch q.Sort {
	case SortMatchDateAsc:
		opts.SetSort(bson.D{{Key: "match_date", Value: 1}})
	case SortMatchDateDesc:
		opts.SetSort(bson.D{{Key: "match_date", Value: -1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.Coll.Find(ctx, filterFor(q), opts)
	if err != nil {
		return nil, err
	}
	defer func(cur *mongo.Cursor, ctx context.Context) {
		_ = cur.Close(ctx)
	}(cur, ctx)

	out := make([]model.MatchSnapshot, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// filterFor translates a Query into a Mongo filter document.
func filterFor(q Query) bson.M {
	filter := bson.M{}
	if len(q.Statuses) == 1 {
		filter["status"] = q.Statuses[0]
	} else if len(q.Statuses) > 1 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	if q.HomeTeam != "" {
		filter["home_team.name"] = q.HomeTeam
	}
	if q.AwayTeam != "" {
		filter["away_team.name"] = q.AwayTeam
	}
	if q.LeagueID != "" {
		filter["league.id"] = q.LeagueID
	}
	if q.DateFrom != nil || q.DateTo != nil {
		rng := bson.M{}
		if q.DateFrom != nil {
			rng["$gte"] = *q.DateFrom
		}
		if q.DateTo != nil {
			rng["$lte"] = *q.DateTo
		}
		filter["match_date"] = rng
	}
	if len(q.Any) > 0 {
		alts := make(bson.A, 0, len(q.Any))
		for _, alt := range q.Any {
			alts = append(alts, filterFor(alt))
		}
		filter["$or"] = alts
	}
	return filter
}

// MongoJobStore is the crawl_jobs collection.
type MongoJobStore struct {
	Coll *mongo.Collection
}

func NewMongoJobStore(coll *mongo.Collection) *MongoJobStore {
	return &MongoJobStore{Coll: coll}
}

func (s *MongoJobStore) InsertJob(ctx context.Context, job *model.CrawlJob) error {
	res, err := s.Coll.InsertOne(ctx, job)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		job.ID = oid
	}
	return nil
}

func (s *MongoJobStore) FindJob(ctx context.Context, jobID string) (*model.CrawlJob, error) {
	var job model.CrawlJob
	err := s.Coll.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoJobStore) CompleteJob(ctx context.Context, job *model.CrawlJob) error {
	update := bson.M{"$set": bson.M{
		"status":       job.Status,
		"completed_at": job.CompletedAt,
		"duration":     job.Duration,
		"result":       job.Result,
		"error":        job.Error,
	}}
	_, err := s.Coll.UpdateOne(ctx, bson.M{"job_id": job.JobID}, update)
	return err
}

func (s *MongoJobStore) RecentJobs(ctx context.Context, limit int) ([]model.CrawlJob, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.Coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer func(cur *mongo.Cursor, ctx context.Context) {
		_ = cur.Close(ctx)
	}(cur, ctx)

	out := make([]model.CrawlJob, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoJobStore) TaskStats(ctx context.Context, since time.Time) ([]model.TaskStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"started_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$task_name",
			"total_runs": bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", model.JobCompleted}}, 1, 0},
			}},
			"failed": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", model.JobFailed}}, 1, 0},
			}},
			"avg_duration":   bson.M{"$avg": "$duration"},
			"total_duration": bson.M{"$sum": "$duration"},
		}}},
	}
	cur, err := s.Coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func(cur *mongo.Cursor, ctx context.Context) {
		_ = cur.Close(ctx)
	}(cur, ctx)

	out := make([]model.TaskStats, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
