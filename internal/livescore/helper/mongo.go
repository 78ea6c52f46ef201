package helper

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Stores struct {
	Client    *mongo.Client
	DB        *mongo.Database
	Matches   *mongo.Collection // 固定集合：matches
	CrawlJobs *mongo.Collection // 固定集合：crawl_jobs
}

// ConnectMongo connects, pings and creates indexes.
func ConnectMongo(ctx context.Context, host, dbname, username, password, authSource string) (*Stores, error) {
	clientOpts := options.Client().ApplyURI("mongodb://" + host)
	if username != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   username,
			Password:   password,
			AuthSource: authSource,
		})
	}

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err = cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := cli.Database(dbname)
	s := &Stores{
		Client:    cli,
		DB:        db,
		Matches:   db.Collection("matches"),
		CrawlJobs: db.Collection("crawl_jobs"),
	}
	if err := ensureIndexes(ctx, s.Matches.Indexes(), s.CrawlJobs.Indexes()); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (s *Stores) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// indexCreator is the part of mongo.IndexView used at startup.
type indexCreator interface {
	CreateMany(ctx context.Context, models []mongo.IndexModel, opts ...*options.CreateIndexesOptions) ([]string, error)
}

func ensureIndexes(ctx context.Context, matches, jobs indexCreator) error {
	// matches: external_id 唯一，reconciler 依赖它去重
	_, err := matches.CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "match_date", Value: -1}}},
		{Keys: bson.D{{Key: "league.id", Value: 1}, {Key: "match_date", Value: -1}}},
		{Keys: bson.D{{Key: "home_team.name", Value: 1}, {Key: "away_team.name", Value: 1}, {Key: "match_date", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create matches indexes: %w", err)
	}
	// crawl_jobs: 监控接口按 job_id 更新、按 task_name 和时间查询
	_, err = jobs.CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "job_id", Value: 1}}},
		{Keys: bson.D{{Key: "task_name", Value: 1}, {Key: "started_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create crawl_jobs indexes: %w", err)
	}
	return nil
}

// UTCDayBounds returns the first and last instant of t's UTC calendar day.
func UTCDayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}
