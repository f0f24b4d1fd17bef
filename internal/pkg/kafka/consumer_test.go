package kafka

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/retry"
	"Timeline/internal/pkg/testutil"
	"Timeline/internal/repository"
	"Timeline/internal/service"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testPolicy = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type fakeFanout struct {
	service.FanoutService
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *fakeFanout) Dispatch(_ context.Context, _ *event.PostCreated) (*service.FanoutResult, error) {
	f.calls.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("db unavailable")
	}
	return &service.FanoutResult{}, nil
}

type fakeFeed struct {
	service.FeedService
	mu      sync.Mutex
	removed [][2]uint64
}

func (f *fakeFeed) RemoveAuthorFromFeed(_ context.Context, _ *gorm.DB, userID, authorID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, [2]uint64{userID, authorID})
	return 1, nil
}

type fakeBackfill struct {
	service.BackfillService
	calls atomic.Int32
}

func (f *fakeBackfill) Backfill(_ context.Context, _, _ uint64) (int64, error) {
	f.calls.Add(1)
	return 0, nil
}

func encoded(t *testing.T, evt event.Event) []byte {
	t.Helper()
	b, err := event.Encode(evt)
	require.NoError(t, err)
	return b
}

func letters(t *testing.T, repo repository.DeadLetterRepo) []*model.DeadLetter {
	t.Helper()
	out, err := repo.ListPending(context.Background(), []string{model.DeadLetterKindEvent}, 10)
	require.NoError(t, err)
	return out
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	db := testutil.NewTestDB(t)
	dlRepo := repository.NewDeadLetterRepo(db)
	fanout := &fakeFanout{}
	fanout.failures.Store(2)

	h := NewPostEventsHandler(fanout, &fakeFeed{}, nil, dlRepo, testPolicy)
	msg := &sarama.ConsumerMessage{Topic: "posts", Value: encoded(t, &event.PostCreated{PostID: 1, AuthorID: 2, CreatedAt: time.Now()})}

	require.NoError(t, h.runner.handle(context.Background(), msg))
	assert.EqualValues(t, 3, fanout.calls.Load())
	assert.Empty(t, letters(t, dlRepo))
}

func TestRunnerDeadLettersExhaustedEvent(t *testing.T) {
	db := testutil.NewTestDB(t)
	dlRepo := repository.NewDeadLetterRepo(db)
	fanout := &fakeFanout{}
	fanout.failures.Store(10)

	h := NewPostEventsHandler(fanout, &fakeFeed{}, nil, dlRepo, testPolicy)
	msg := &sarama.ConsumerMessage{
		Topic:  "posts",
		Offset: 42,
		Key:    []byte("2"),
		Value:  encoded(t, &event.PostCreated{PostID: 1, AuthorID: 2, CreatedAt: time.Now()}),
	}

	require.NoError(t, h.runner.handle(context.Background(), msg))
	assert.EqualValues(t, 3, fanout.calls.Load())

	got := letters(t, dlRepo)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Attempts)
	assert.Contains(t, got[0].LastError, "db unavailable")

	var payload eventDeadLetter
	require.NoError(t, json.Unmarshal([]byte(got[0].Payload), &payload))
	assert.Equal(t, "posts", payload.Topic)
	assert.EqualValues(t, 42, payload.Offset)
	assert.Equal(t, "2", payload.Key)
	assert.NotEmpty(t, payload.Value)
}

func TestRunnerDeadLettersMalformedMessage(t *testing.T) {
	db := testutil.NewTestDB(t)
	dlRepo := repository.NewDeadLetterRepo(db)
	fanout := &fakeFanout{}

	h := NewPostEventsHandler(fanout, &fakeFeed{}, nil, dlRepo, testPolicy)
	msg := &sarama.ConsumerMessage{Topic: "posts", Value: []byte("not json")}

	require.NoError(t, h.runner.handle(context.Background(), msg))
	assert.Zero(t, fanout.calls.Load())

	got := letters(t, dlRepo)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Attempts)

	var payload eventDeadLetter
	require.NoError(t, json.Unmarshal([]byte(got[0].Payload), &payload))
	assert.Equal(t, "not json", payload.Raw)
}

func TestRunnerRejectsEventOnWrongTopic(t *testing.T) {
	db := testutil.NewTestDB(t)
	dlRepo := repository.NewDeadLetterRepo(db)
	backfill := &fakeBackfill{}

	h := NewFollowEventsHandler(backfill, &fakeFeed{}, repository.NewUserFollowRepo(db), dlRepo, testPolicy)
	msg := &sarama.ConsumerMessage{Topic: "follows", Value: encoded(t, &event.PostDeleted{PostID: 5})}

	require.NoError(t, h.runner.handle(context.Background(), msg))
	assert.Zero(t, backfill.calls.Load())

	got := letters(t, dlRepo)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Attempts)
}

func TestFollowDestroyedSkipsWhenEdgeRecreated(t *testing.T) {
	db := testutil.NewTestDB(t)
	feed := &fakeFeed{}
	h := NewFollowEventsHandler(&fakeBackfill{}, feed, repository.NewUserFollowRepo(db), repository.NewDeadLetterRepo(db), testPolicy)
	ctx := context.Background()

	// 3 已重新关注 7，旧的取关事件不清理
	testutil.SeedFollows(t, db, 7, 3)
	require.NoError(t, h.logic(ctx, &event.FollowDestroyed{FollowerID: 3, FollowedID: 7}))
	assert.Empty(t, feed.removed)

	require.NoError(t, h.logic(ctx, &event.FollowDestroyed{FollowerID: 4, FollowedID: 7}))
	assert.Equal(t, [][2]uint64{{4, 7}}, feed.removed)
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "test" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "posts" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestConsumeClaimMarksLastOffsetOfBatch(t *testing.T) {
	db := testutil.NewTestDB(t)
	fanout := &fakeFanout{}
	h := NewPostEventsHandler(fanout, &fakeFeed{}, nil, repository.NewDeadLetterRepo(db), testPolicy)

	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}
	for i := int64(0); i < 5; i++ {
		claim.messages <- &sarama.ConsumerMessage{
			Topic:  "posts",
			Offset: i,
			Value:  encoded(t, &event.PostCreated{PostID: uint64(i + 1), AuthorID: 2, CreatedAt: time.Now()}),
		}
	}
	close(claim.messages)

	require.NoError(t, h.ConsumeClaim(session, claim))
	assert.EqualValues(t, 5, fanout.calls.Load())
	assert.Equal(t, []int64{4}, session.marked)
}

func TestConsumeClaimDoesNotMarkWhenSessionEnds(t *testing.T) {
	fanout := &fakeFanout{}
	fanout.failures.Store(1000)
	slow := retry.Policy{MaxAttempts: 1000, InitialInterval: 5 * time.Millisecond, MaxInterval: 5 * time.Millisecond}
	db := testutil.NewTestDB(t)
	h := NewPostEventsHandler(fanout, &fakeFeed{}, nil, repository.NewDeadLetterRepo(db), slow)

	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	messages := []*sarama.ConsumerMessage{{
		Topic: "posts",
		Value: encoded(t, &event.PostCreated{PostID: 1, AuthorID: 2, CreatedAt: time.Now()}),
	}}

	time.AfterFunc(20*time.Millisecond, cancel)
	processBatch(session, messages, h.runner)
	assert.Empty(t, session.marked)
}
