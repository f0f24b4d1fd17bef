package kafka

import (
	"Timeline/internal/pkg/event"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectMessage(t *testing.T, topic, key, typ string) mocks.MessageChecker {
	return func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, topic, msg.Topic)
		k, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, key, string(k))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, typ, string(msg.Headers[0].Value))

		v, err := msg.Value.Encode()
		require.NoError(t, err)
		evt, err := event.Decode(v)
		require.NoError(t, err)
		assert.Equal(t, typ, evt.Type())
		return nil
	}
}

func TestProducerRoutesByStream(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectMessage(t, "posts", "7", event.TypePostCreated))
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectMessage(t, "follows", "3", event.TypeFollowCreated))
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectMessage(t, "posts", "7", event.TypeAuthorRemoved))

	p := NewProducerWithClient(sp, "posts", "follows")
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, &event.PostCreated{PostID: 1, AuthorID: 7, CreatedAt: time.Now()}))
	require.NoError(t, p.Publish(ctx, &event.FollowCreated{FollowerID: 3, FollowedID: 7}))
	require.NoError(t, p.Publish(ctx, &event.AuthorRemoved{AuthorID: 7}))
	require.NoError(t, p.Close())
}

func TestProducerRejectsInvalidEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewProducerWithClient(sp, "posts", "follows")

	err := p.Publish(context.Background(), &event.FollowCreated{FollowerID: 3, FollowedID: 3})
	require.ErrorIs(t, err, event.ErrMalformed)
	require.NoError(t, p.Close())
}

func TestProducerSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	boom := errors.New("broker down")
	sp.ExpectSendMessageAndFail(boom)

	p := NewProducerWithClient(sp, "posts", "follows")
	err := p.Publish(context.Background(), &event.PostDeleted{PostID: 9})
	require.ErrorIs(t, err, boom)
	require.NoError(t, p.Close())
}
