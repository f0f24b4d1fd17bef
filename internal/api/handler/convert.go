package handler

import (
	"Timeline/internal/api/dto"
	"Timeline/internal/model"
	"time"

	"github.com/jinzhu/copier"
)

var copyOption = copier.Option{
	Converters: []copier.TypeConverter{
		{
			SrcType: time.Time{},
			DstType: copier.String,
			Fn: func(src interface{}) (interface{}, error) {
				t, _ := src.(time.Time)
				return t.UTC().Format(time.RFC3339Nano), nil
			},
		},
	},
}

func toPostDTOs(posts []*model.Post) ([]*dto.PostDTO, error) {
	res := make([]*dto.PostDTO, 0, len(posts))
	if err := copier.CopyWithOption(&res, &posts, copyOption); err != nil {
		return nil, err
	}
	return res, nil
}

func toPostDTO(post *model.Post) (*dto.PostDTO, error) {
	res := &dto.PostDTO{}
	if err := copier.CopyWithOption(res, post, copyOption); err != nil {
		return nil, err
	}
	return res, nil
}

func toUserFollowDTOs(follows []*model.UserFollow) ([]*dto.UserFollowDTO, error) {
	res := make([]*dto.UserFollowDTO, 0, len(follows))
	if err := copier.CopyWithOption(&res, &follows, copyOption); err != nil {
		return nil, err
	}
	return res, nil
}
