package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrEmailTaken         = errors.New("email taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrGroupNotFound      = errors.New("group not found")
	ErrStoryNotFound      = errors.New("story not found")
	ErrContactNotFound    = errors.New("contact not found")
	ErrWallpaperNotFound  = errors.New("wallpaper not found")
	ErrNotAMember         = errors.New("not a member")
)
