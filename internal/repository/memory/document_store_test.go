package memory

import (
	"context"
	"errors"
	"groupboard-backend/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGet(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	id, err := s.Add(ctx, model.CollectionPosts, map[string]interface{}{"title": "hello", "like_count": 0},
		model.ServerTimestamp("created_at"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	doc, err := s.Get(ctx, model.CollectionPosts, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Data["title"])
	assert.Equal(t, float64(0), doc.Data["like_count"])
	assert.NotEmpty(t, doc.Data["created_at"])
	assert.Equal(t, int64(1), doc.Version)

	_, err = s.Get(ctx, model.CollectionPosts, "missing")
	assert.True(t, errors.Is(err, model.ErrDocumentNotFound))
}

func TestUpdateAtomicOperators(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	id, err := s.Add(ctx, model.CollectionPosts, map[string]interface{}{"likes": []string{}, "like_count": 0})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, model.CollectionPosts, id,
		model.ArrayUnion("likes", "u1"), model.Increment("like_count", 1)))
	require.NoError(t, s.Update(ctx, model.CollectionPosts, id,
		model.ArrayUnion("likes", "u2"), model.Increment("like_count", 1)))
	require.NoError(t, s.Update(ctx, model.CollectionPosts, id,
		model.ArrayRemove("likes", "u1"), model.Increment("like_count", -1)))

	doc, err := s.Get(ctx, model.CollectionPosts, id)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"u2"}, doc.Data["likes"])
	assert.Equal(t, float64(1), doc.Data["like_count"])
	assert.Equal(t, int64(4), doc.Version)

	err = s.Update(ctx, model.CollectionPosts, "missing", model.Set("title", "x"))
	assert.True(t, errors.Is(err, model.ErrDocumentNotFound))
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	id, err := s.Add(ctx, model.CollectionPosts, map[string]interface{}{"reply_count": 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, model.CollectionPosts, id, model.Increment("reply_count", 1)))
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, model.CollectionPosts, id)
	require.NoError(t, err)
	assert.Equal(t, float64(50), doc.Data["reply_count"])
}

func TestGuardedIncrementFollowsSetMembership(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	id, err := s.Add(ctx, model.CollectionPosts, map[string]interface{}{"likes": []string{}, "like_count": 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, model.CollectionPosts, id,
				model.ArrayUnion("likes", "u1"), model.IncrementIfChanged("like_count", 1, "likes")))
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, model.CollectionPosts, id)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"u1"}, doc.Data["likes"])
	assert.Equal(t, float64(1), doc.Data["like_count"])

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Update(ctx, model.CollectionPosts, id,
			model.ArrayRemove("likes", "u1"), model.IncrementIfChanged("like_count", -1, "likes")))
	}
	doc, err = s.Get(ctx, model.CollectionPosts, id)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, doc.Data["likes"])
	assert.Equal(t, float64(0), doc.Data["like_count"])
}

func TestQueryFilters(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()
	for _, m := range []map[string]interface{}{
		{"group_id": "g1", "status": "active", "user_id": "a"},
		{"group_id": "g1", "status": "removed", "user_id": "b"},
		{"group_id": "g2", "status": "active", "user_id": "c"},
	} {
		_, err := s.Add(ctx, model.CollectionMembers, m)
		require.NoError(t, err)
	}

	docs, err := s.Query(ctx, model.NewQuery(model.CollectionMembers,
		model.Where("group_id", "g1"), model.Where("status", "active")))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].Data["user_id"])

	docs, err = s.Query(ctx, model.NewQuery(model.CollectionMembers, model.WhereIn("user_id", []string{"a", "c"})))
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestQueryRejectsOversizedIn(t *testing.T) {
	s := NewDocumentStore()
	ids := make([]string, model.MaxInValues+1)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	_, err := s.Query(context.Background(), model.NewQuery(model.CollectionUsers, model.WhereIn("id", ids)))
	assert.ErrorIs(t, err, model.ErrInLimitExceeded)
}

func TestSubscribeQueryDeliversLatestSnapshot(t *testing.T) {
	s := NewDocumentStore()
	ctx := context.Background()

	var mu sync.Mutex
	var last []*model.Document
	unsub, err := s.SubscribeQuery(model.NewQuery(model.CollectionPosts, model.Where("group_id", "g1")),
		func(docs []*model.Document) {
			mu.Lock()
			last = docs
			mu.Unlock()
		}, nil)
	require.NoError(t, err)
	defer unsub()

	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, model.CollectionPosts, map[string]interface{}{"group_id": "g1"})
		require.NoError(t, err)
	}
	_, err = s.Add(ctx, model.CollectionPosts, map[string]interface{}{"group_id": "g2"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeDocumentReportsMissingAsNil(t *testing.T) {
	s := NewDocumentStore()
	got := make(chan *model.Document, 4)
	unsub, err := s.SubscribeDocument(model.CollectionGroups, "g1", func(doc *model.Document) {
		got <- doc
	}, nil)
	require.NoError(t, err)
	defer unsub()

	select {
	case doc := <-got:
		assert.Nil(t, doc)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, s.Set(context.Background(), model.CollectionGroups, "g1", map[string]interface{}{"title": "G"}))
	select {
	case doc := <-got:
		require.NotNil(t, doc)
		assert.Equal(t, "G", doc.Data["title"])
	case <-time.After(time.Second):
		t.Fatal("no update snapshot")
	}
}

func TestSubscribeErrorCallback(t *testing.T) {
	s := NewDocumentStore()
	s.FailNext("query", errors.New("unavailable"))

	errs := make(chan error, 1)
	unsub, err := s.SubscribeQuery(model.NewQuery(model.CollectionPosts), func([]*model.Document) {}, func(err error) {
		errs <- err
	})
	require.NoError(t, err)
	defer unsub()

	select {
	case err := <-errs:
		assert.EqualError(t, err, "unavailable")
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}

func TestUnsubscribeIsIdempotentAndStopsDelivery(t *testing.T) {
	s := NewDocumentStore()
	var mu sync.Mutex
	calls := 0
	unsub, err := s.SubscribeQuery(model.NewQuery(model.CollectionPosts), func([]*model.Document) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.Equal(t, 0, s.Hub().Len())

	_, err = s.Add(context.Background(), model.CollectionPosts, map[string]interface{}{"title": "x"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
