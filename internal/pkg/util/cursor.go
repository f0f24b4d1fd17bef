package util

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

const (
	CursorSourceStore = "store"
	CursorSourceJoin  = "join"
)

var ErrCursorMalformed = errors.New("malformed cursor")

// FeedCursor 时间线翻页游标，对客户端不透明
type FeedCursor struct {
	CreatedAt time.Time
	PostID    uint64
	Source    string
}

type feedCursorToken struct {
	T  int64  `json:"t"`
	ID uint64 `json:"id"`
	S  string `json:"s"`
}

// EncodeFeedCursor 编码为 base64url，时间精度为微秒
func EncodeFeedCursor(c *FeedCursor) string {
	if c == nil {
		return ""
	}
	b, _ := json.Marshal(&feedCursorToken{
		T:  c.CreatedAt.UTC().UnixMicro(),
		ID: c.PostID,
		S:  c.Source,
	})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeFeedCursor 空串返回 nil, nil
func DecodeFeedCursor(token string) (*FeedCursor, error) {
	if token == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrCursorMalformed
	}
	var t feedCursorToken
	if err = json.Unmarshal(b, &t); err != nil {
		return nil, ErrCursorMalformed
	}
	if t.ID == 0 || t.T <= 0 {
		return nil, ErrCursorMalformed
	}
	switch t.S {
	case CursorSourceStore, CursorSourceJoin:
	default:
		return nil, ErrCursorMalformed
	}
	return &FeedCursor{
		CreatedAt: time.UnixMicro(t.T).UTC(),
		PostID:    t.ID,
		Source:    t.S,
	}, nil
}
