package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid    = errors.New("参数错误")
	ErrCursorInvalid   = errors.New("游标无效")
	ErrUserFollowSelf  = errors.New("用户不能关注自己")
	ErrUserFollowExist = errors.New("用户已关注")
	ErrUserNotFollowed = errors.New("用户未关注")
	ErrPostNotFound    = errors.New("帖子不存在")
	ErrPostNotOwner    = errors.New("只能删除自己的帖子")
	ErrParentNotFound  = errors.New("回复的帖子不存在")
	ErrInvalidMetric   = errors.New("计数类型无效")
	UnauthorizedError  = errors.New("权限不足")
	UnExpectedError    = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:    BadRequest,
	ErrCursorInvalid:   BadRequest,
	ErrUserFollowSelf:  BadRequest,
	ErrUserFollowExist: BadRequest,
	ErrUserNotFollowed: BadRequest,
	ErrPostNotFound:    NotFound,
	ErrPostNotOwner:    Forbidden,
	ErrParentNotFound:  NotFound,
	ErrInvalidMetric:   BadRequest,
	UnauthorizedError:  Unauthorized,
	UnExpectedError:    InternalServerError,
}

// LookupError 按 errors.Is 匹配业务错误码
func LookupError(err error) (int, bool) {
	if code, ok := ErrorMap[err]; ok {
		return code, true
	}
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code, true
		}
	}
	return 0, false
}
