package util

import "errors"

var (
	ErrPhoneRegistered    = errors.New("该手机号已注册")
	ErrInvalidCredentials = errors.New("手机号或密码错误")
	ErrInvalidPhone       = errors.New("手机号必须为11位数字")
)
