package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/record"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type row struct {
	ID        string    `bson:"_id"`
	Site      string    `bson:"site"`
	N         int64     `bson:"n"`
	CreatedAt time.Time `bson:"created_at"`
}

func seed(t *testing.T, c Collection, rows ...row) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, c.InsertOne(context.Background(), r))
	}
}

func TestMemoryFindOne(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "a", Site: "s1", N: 1, CreatedAt: day})

	var got row
	require.NoError(t, c.FindOne(ctx, bson.D{{Key: "_id", Value: "a"}}, &got))
	assert.Equal(t, row{ID: "a", Site: "s1", N: 1, CreatedAt: day}, got)

	err := c.FindOne(ctx, bson.D{{Key: "_id", Value: "zz"}}, &got)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryFindFiltersSortsAndLimits(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	for i := 0; i < 5; i++ {
		seed(t, c, row{ID: string(rune('a' + i)), Site: "s1", N: int64(i), CreatedAt: day.Add(time.Duration(i) * time.Hour)})
	}
	seed(t, c, row{ID: "other", Site: "s2", N: 99, CreatedAt: day})

	var got []row
	err := c.Find(ctx,
		bson.D{{Key: "site", Value: "s1"}, {Key: "n", Value: bson.D{{Key: "$gte", Value: 1}}}},
		FindOptions{Sort: bson.D{{Key: "created_at", Value: -1}}, Limit: 3},
		&got)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"e", "d", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestMemoryFindEmptyResultIsEmptySlice(t *testing.T) {
	var got []row
	err := NewMemory().Collection("rows").Find(context.Background(), bson.D{}, FindOptions{}, &got)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMemoryFilterOperators(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c,
		row{ID: "a", Site: "s1", N: 1, CreatedAt: day},
		row{ID: "b", Site: "s2", N: 2, CreatedAt: day.Add(time.Hour)},
		row{ID: "c", Site: "s3", N: 3, CreatedAt: day.Add(2 * time.Hour)},
	)

	count := func(f bson.D) int64 {
		n, err := c.CountDocuments(ctx, f)
		require.NoError(t, err)
		return n
	}
	assert.EqualValues(t, 2, count(bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b", "missing"}}}}}))
	assert.EqualValues(t, 2, count(bson.D{{Key: "site", Value: bson.D{{Key: "$ne", Value: "s1"}}}}))
	assert.EqualValues(t, 2, count(bson.D{{Key: "created_at", Value: bson.D{
		{Key: "$gte", Value: day.Add(time.Hour)},
		{Key: "$lte", Value: day.Add(2 * time.Hour)},
	}}}))
	assert.EqualValues(t, 1, count(bson.D{{Key: "n", Value: bson.D{{Key: "$lt", Value: int32(2)}}}}))
	assert.EqualValues(t, 0, count(bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: "2"}}}}), "cross-type range never matches")
	assert.EqualValues(t, 3, count(bson.D{{Key: "nope", Value: nil}}))
	assert.EqualValues(t, 0, count(bson.D{{Key: "nope", Value: bson.D{{Key: "$exists", Value: true}}}}))
	assert.EqualValues(t, 2, count(bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "_id", Value: "a"}},
		bson.D{{Key: "n", Value: 3}},
	}}}))
}

func TestMemoryUnsupportedOperatorFails(t *testing.T) {
	_, err := NewMemory().Collection("rows").CountDocuments(context.Background(),
		bson.D{{Key: "n", Value: bson.D{{Key: "$regex", Value: "x"}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$regex")
}

func TestMemoryUnsupportedOperatorFailsOnEmptyCollection(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	regex := bson.D{{Key: "n", Value: bson.D{{Key: "$regex", Value: "x"}}}}
	nested := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "site", Value: "s1"}},
		bson.D{{Key: "n", Value: bson.D{{Key: "$mod", Value: bson.A{2, 0}}}}},
	}}}

	var one row
	assert.ErrorContains(t, c.FindOne(ctx, regex, &one), "$regex")

	var many []row
	assert.ErrorContains(t, c.Find(ctx, nested, FindOptions{}, &many), "$mod")

	_, err := c.DeleteMany(ctx, regex)
	assert.ErrorContains(t, err, "$regex")

	_, err = c.UpdateOne(ctx, bson.D{{Key: "_id", Value: "a"}}, bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: 1}}}})
	assert.ErrorContains(t, err, "$inc")

	err = c.Aggregate(ctx, mongo.Pipeline{{{Key: "$match", Value: regex}}}, &many)
	assert.ErrorContains(t, err, "$regex")

	err = c.Aggregate(ctx, mongo.Pipeline{{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: "$site"},
		{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$n"}}},
	}}}}, &many)
	assert.ErrorContains(t, err, "$avg")
}

func TestMemoryDuplicateID(t *testing.T) {
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "a"})
	err := c.InsertOne(context.Background(), row{ID: "a"})
	assert.ErrorIs(t, err, errs.ErrDuplicate)
}

func TestMemoryUserEmailUniqueAmongPresentValues(t *testing.T) {
	ctx := context.Background()
	users := NewMemory().Collection(record.CollUsers)

	require.NoError(t, users.InsertOne(ctx, record.User{ID: "u1", Name: "a"}))
	require.NoError(t, users.InsertOne(ctx, record.User{ID: "u2", Name: "b"}), "absent emails never collide")
	require.NoError(t, users.InsertOne(ctx, record.User{ID: "u3", Name: "c", Email: "c@example.com"}))

	err := users.InsertOne(ctx, record.User{ID: "u4", Name: "d", Email: "c@example.com"})
	assert.ErrorIs(t, err, errs.ErrDuplicate)

	_, err = users.UpdateOne(ctx, bson.D{{Key: "_id", Value: "u1"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "email", Value: "c@example.com"}}}})
	assert.ErrorIs(t, err, errs.ErrDuplicate)
}

func TestMemoryInsertManyIsUnordered(t *testing.T) {
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "b"})

	n, err := c.InsertMany(context.Background(), []any{row{ID: "a"}, row{ID: "b"}, row{ID: "c"}})
	assert.ErrorIs(t, err, errs.ErrDuplicate)
	assert.EqualValues(t, 2, n)

	total, err := c.CountDocuments(context.Background(), bson.D{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestMemoryUpdateOne(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "a", N: 1, Site: "s1"})

	matched, err := c.UpdateOne(ctx, bson.D{{Key: "_id", Value: "a"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "n", Value: int64(7)}}}, {Key: "$unset", Value: bson.D{{Key: "site", Value: ""}}}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, matched)

	var got row
	require.NoError(t, c.FindOne(ctx, bson.D{{Key: "_id", Value: "a"}}, &got))
	assert.EqualValues(t, 7, got.N)
	assert.Empty(t, got.Site)

	matched, err = c.UpdateOne(ctx, bson.D{{Key: "_id", Value: "zz"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "n", Value: 1}}}})
	require.NoError(t, err)
	assert.Zero(t, matched)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "a", Site: "s"}, row{ID: "b", Site: "s"}, row{ID: "c", Site: "s"})

	n, err := c.DeleteOne(ctx, bson.D{{Key: "site", Value: "s"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: []string{"b", "c", "missing"}}}}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMemoryAggregateGroupsByDay(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c,
		row{ID: "1", Site: "s1", CreatedAt: day.Add(1 * time.Hour)},
		row{ID: "2", Site: "s1", CreatedAt: day.Add(23 * time.Hour)},
		row{ID: "3", Site: "s1", CreatedAt: day.Add(25 * time.Hour)},
		row{ID: "4", Site: "s2", CreatedAt: day},
	)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "site", Value: "s1"}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$created_at"},
				{Key: "timezone", Value: "UTC"},
			}}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "first", Value: bson.D{{Key: "$first", Value: "$_id"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
	}

	var got []struct {
		Day   string `bson:"_id"`
		Count int64  `bson:"count"`
		First string `bson:"first"`
	}
	require.NoError(t, c.Aggregate(ctx, pipeline, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-02", got[0].Day)
	assert.EqualValues(t, 1, got[0].Count)
	assert.Equal(t, "2024-01-01", got[1].Day)
	assert.EqualValues(t, 2, got[1].Count)
	assert.Equal(t, "1", got[1].First)
}

func TestMemoryDateToStringHonoursTimezone(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "1", CreatedAt: day.Add(20 * time.Hour)})

	var got []struct {
		Day string `bson:"_id"`
	}
	err := c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$created_at"},
				{Key: "timezone", Value: "+09:00"},
			}}}},
		}}},
	}, &got)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-02", got[0].Day)
}

func TestMemoryLimitAndCountStages(t *testing.T) {
	ctx := context.Background()
	c := NewMemory().Collection("rows")
	seed(t, c, row{ID: "1"}, row{ID: "2"}, row{ID: "3"})

	var got []struct {
		N int64 `bson:"n"`
	}
	err := c.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$limit", Value: 2}},
		{{Key: "$count", Value: "n"}},
	}, &got)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 2, got[0].N)
}

func TestMemoryClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Ping(ctx))
	require.NoError(t, m.Close(ctx))

	assert.True(t, errs.IsUnavailable(m.Ping(ctx)))
	err := m.Collection("rows").InsertOne(ctx, row{ID: "a"})
	assert.True(t, errs.IsUnavailable(err))
}

func TestMemoryCancelledContextIsUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []row
	err := NewMemory().Collection("rows").Find(ctx, bson.D{}, FindOptions{}, &got)
	assert.True(t, errs.IsUnavailable(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMemoryNowUsesStoreClock(t *testing.T) {
	m := NewMemory()
	fixed := time.Date(2030, 5, 6, 7, 8, 9, 123456789, time.UTC)
	m.SetClock(func() time.Time { return fixed })

	now, err := m.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed.Truncate(time.Millisecond), now)
}
