package helper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestUTCDayBounds(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	// 2026-10-18 03:00 CST is still 2026-10-17 in UTC.
	start, end := UTCDayBounds(time.Date(2026, 10, 18, 3, 0, 0, 0, loc))

	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 10, 17, 23, 59, 59, 999999999, time.UTC), end)
}

type fakeIndexes struct {
	err    error
	models []mongo.IndexModel
}

func (f *fakeIndexes) CreateMany(_ context.Context, models []mongo.IndexModel, _ ...*options.CreateIndexesOptions) ([]string, error) {
	f.models = append(f.models, models...)
	if f.err != nil {
		return nil, f.err
	}
	return make([]string, len(models)), nil
}

func TestEnsureIndexes(t *testing.T) {
	ctx := context.Background()
	matches, jobs := &fakeIndexes{}, &fakeIndexes{}
	require.NoError(t, ensureIndexes(ctx, matches, jobs))
	assert.Len(t, matches.models, 4)
	assert.Len(t, jobs.models, 2)
}

func TestEnsureIndexes_CrawlJobsFailureIsReturned(t *testing.T) {
	denied := errors.New("not authorized on livescore to execute command createIndexes")
	err := ensureIndexes(context.Background(), &fakeIndexes{}, &fakeIndexes{err: denied})

	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.Contains(t, err.Error(), "crawl_jobs")
}
