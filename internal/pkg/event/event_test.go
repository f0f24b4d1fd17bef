package event

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	parent := uint64(7)
	events := []Event{
		&PostCreated{PostID: 1, AuthorID: 2, ParentID: &parent, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		&PostDeleted{PostID: 1},
		&AuthorRemoved{AuthorID: 2},
		&FollowCreated{FollowerID: 3, FollowedID: 2},
		&FollowDestroyed{FollowerID: 3, FollowedID: 2},
	}
	for _, evt := range events {
		t.Run(evt.Type(), func(t *testing.T) {
			b, err := Encode(evt)
			require.NoError(t, err)

			var env Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			assert.Equal(t, evt.Type(), env.Type)
			assert.False(t, env.OccurredAt.IsZero())

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, evt, got)
		})
	}
}

func TestEventRouting(t *testing.T) {
	assert.Equal(t, StreamPosts, (&PostCreated{}).Stream())
	assert.Equal(t, StreamPosts, (&PostDeleted{}).Stream())
	assert.Equal(t, StreamPosts, (&AuthorRemoved{}).Stream())
	assert.Equal(t, StreamFollows, (&FollowCreated{}).Stream())
	assert.Equal(t, StreamFollows, (&FollowDestroyed{}).Stream())

	assert.Equal(t, "2", (&PostCreated{PostID: 1, AuthorID: 2}).Key())
	assert.Equal(t, "3", (&FollowCreated{FollowerID: 3, FollowedID: 2}).Key())
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{`,
		"unknown type":   `{"type":"PostLiked","payload":{"post_id":1}}`,
		"empty payload":  `{"type":"PostDeleted"}`,
		"bad payload":    `{"type":"PostDeleted","payload":"x"}`,
		"missing fields": `{"type":"FollowCreated","payload":{"follower_id":1}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestIsNop(t *testing.T) {
	assert.True(t, IsNop(nil))
	assert.True(t, IsNop(NopPublisher{}))
	assert.True(t, IsNop(&NopPublisher{}))
	assert.False(t, IsNop(recordingPublisher(nil)))
}

type recordingPublisher func(Event)

func (p recordingPublisher) Publish(_ context.Context, evt Event) error {
	if p != nil {
		p(evt)
	}
	return nil
}
