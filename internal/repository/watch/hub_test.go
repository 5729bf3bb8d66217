package watch

import (
	"context"
	"groupboard-backend/internal/model"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// gatedFetcher 查询在 gate 非空时阻塞，直到测试放行
type gatedFetcher struct {
	entered chan struct{}
	gate    chan struct{}
}

func (f *gatedFetcher) Get(_ context.Context, collection, id string) (*model.Document, error) {
	return &model.Document{Collection: collection, ID: id}, nil
}

func (f *gatedFetcher) Query(_ context.Context, q model.Query) ([]*model.Document, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	return []*model.Document{{Collection: q.Collection, ID: "p1"}}, nil
}

func postsQuery() model.Query {
	return model.NewQuery(model.CollectionPosts, model.Where("group_id", "g1"))
}

func TestNoCallbackAfterUnsubscribeDuringFetch(t *testing.T) {
	f := &gatedFetcher{entered: make(chan struct{}), gate: make(chan struct{})}
	h := NewHub(f)
	defer h.Close()

	var calls atomic.Int32
	unsub, err := h.WatchQuery(postsQuery(), func([]*model.Document) { calls.Add(1) }, nil)
	require.NoError(t, err)

	<-f.entered
	unsub()
	close(f.gate)

	assert.Never(t, func() bool { return calls.Load() > 0 }, 100*time.Millisecond, tick)
	assert.Equal(t, 0, h.Len())
}

func TestUnsubscribeWaitsForRunningCallback(t *testing.T) {
	h := NewHub(&gatedFetcher{})
	defer h.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	unsub, err := h.WatchQuery(postsQuery(), func([]*model.Document) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	}, nil)
	require.NoError(t, err)
	<-started

	returned := make(chan struct{})
	go func() {
		unsub()
		close(returned)
	}()
	assert.Never(t, func() bool {
		select {
		case <-returned:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, tick)

	close(release)
	select {
	case <-returned:
	case <-time.After(waitFor):
		t.Fatal("unsubscribe did not return after the callback finished")
	}

	h.Notify(model.CollectionPosts)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, tick)
	unsub()
}

func TestNotifyCoalescesIntoLatestSnapshot(t *testing.T) {
	h := NewHub(&gatedFetcher{})
	defer h.Close()

	var calls atomic.Int32
	unsub, err := h.WatchQuery(postsQuery(), func(docs []*model.Document) {
		if len(docs) == 1 {
			calls.Add(1)
		}
	}, nil)
	require.NoError(t, err)
	defer unsub()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	h.Notify(model.CollectionPosts)
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, waitFor, tick)
	assert.Equal(t, 1, h.Len())
}
