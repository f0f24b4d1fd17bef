package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const (
	TypePostCreated     = "PostCreated"
	TypePostDeleted     = "PostDeleted"
	TypeAuthorRemoved   = "AuthorRemoved"
	TypeFollowCreated   = "FollowCreated"
	TypeFollowDestroyed = "FollowDestroyed"
)

// Stream 决定事件投递到哪个 topic
type Stream int

const (
	StreamPosts Stream = iota
	StreamFollows
)

var ErrMalformed = errors.New("malformed event")

type Event interface {
	Type() string
	Stream() Stream
	// Key 作为分区键，保证同一作者/粉丝的事件有序
	Key() string
	Validate() error
}

// Publisher 投递到持久化工作队列
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type PostCreated struct {
	PostID    uint64    `json:"post_id"`
	AuthorID  uint64    `json:"author_id"`
	ParentID  *uint64   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *PostCreated) Type() string   { return TypePostCreated }
func (e *PostCreated) Stream() Stream { return StreamPosts }
func (e *PostCreated) Key() string    { return strconv.FormatUint(e.AuthorID, 10) }
func (e *PostCreated) Validate() error {
	if e.PostID == 0 || e.AuthorID == 0 || e.CreatedAt.IsZero() {
		return fmt.Errorf("%w: PostCreated requires post_id, author_id and created_at", ErrMalformed)
	}
	return nil
}

type PostDeleted struct {
	PostID uint64 `json:"post_id"`
}

func (e *PostDeleted) Type() string   { return TypePostDeleted }
func (e *PostDeleted) Stream() Stream { return StreamPosts }
func (e *PostDeleted) Key() string    { return strconv.FormatUint(e.PostID, 10) }
func (e *PostDeleted) Validate() error {
	if e.PostID == 0 {
		return fmt.Errorf("%w: PostDeleted requires post_id", ErrMalformed)
	}
	return nil
}

type AuthorRemoved struct {
	AuthorID uint64 `json:"author_id"`
}

func (e *AuthorRemoved) Type() string   { return TypeAuthorRemoved }
func (e *AuthorRemoved) Stream() Stream { return StreamPosts }
func (e *AuthorRemoved) Key() string    { return strconv.FormatUint(e.AuthorID, 10) }
func (e *AuthorRemoved) Validate() error {
	if e.AuthorID == 0 {
		return fmt.Errorf("%w: AuthorRemoved requires author_id", ErrMalformed)
	}
	return nil
}

type FollowCreated struct {
	FollowerID uint64 `json:"follower_id"`
	FollowedID uint64 `json:"followed_id"`
}

func (e *FollowCreated) Type() string   { return TypeFollowCreated }
func (e *FollowCreated) Stream() Stream { return StreamFollows }
func (e *FollowCreated) Key() string    { return strconv.FormatUint(e.FollowerID, 10) }
func (e *FollowCreated) Validate() error {
	if e.FollowerID == 0 || e.FollowedID == 0 || e.FollowerID == e.FollowedID {
		return fmt.Errorf("%w: FollowCreated requires two distinct users", ErrMalformed)
	}
	return nil
}

type FollowDestroyed struct {
	FollowerID uint64 `json:"follower_id"`
	FollowedID uint64 `json:"followed_id"`
}

func (e *FollowDestroyed) Type() string   { return TypeFollowDestroyed }
func (e *FollowDestroyed) Stream() Stream { return StreamFollows }
func (e *FollowDestroyed) Key() string    { return strconv.FormatUint(e.FollowerID, 10) }
func (e *FollowDestroyed) Validate() error {
	if e.FollowerID == 0 || e.FollowedID == 0 {
		return fmt.Errorf("%w: FollowDestroyed requires follower_id and followed_id", ErrMalformed)
	}
	return nil
}

// Envelope 队列中的消息体
type Envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func Encode(evt Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{
		Type:       evt.Type(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
}

// Decode 解析并校验消息，格式错误统一包装为 ErrMalformed
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var evt Event
	switch env.Type {
	case TypePostCreated:
		evt = &PostCreated{}
	case TypePostDeleted:
		evt = &PostDeleted{}
	case TypeAuthorRemoved:
		evt = &AuthorRemoved{}
	case TypeFollowCreated:
		evt = &FollowCreated{}
	case TypeFollowDestroyed:
		evt = &FollowDestroyed{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

// NopPublisher 丢弃所有事件，用于未配置消息队列的场景
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// IsNop 判断事件是否会被直接丢弃
func IsNop(p Publisher) bool {
	switch p.(type) {
	case nil, NopPublisher, *NopPublisher:
		return true
	}
	return false
}
