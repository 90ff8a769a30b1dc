package domain

import "errors"

// 地址目录错误定义，调用方使用 errors.Is 判断。
var (
	ErrInvalidAddress              = errors.New("invalid address")
	ErrInvalidTarget               = errors.New("invalid forwarding target")
	ErrSelfForward                 = errors.New("address can not forward to itself")
	ErrInvalidAutoreply            = errors.New("invalid autoreply configuration")
	ErrInvalidQuota                = errors.New("invalid forward quota")
	ErrAddressExists               = errors.New("address already exists")
	ErrAddressNotFound             = errors.New("address not found")
	ErrCannotDeleteDefault         = errors.New("can not delete main address")
	ErrWildcardNotAllowedAsDefault = errors.New("main address can not contain *")
	ErrOwnerNotFound               = errors.New("owner not found")
	ErrStoreUnavailable            = errors.New("store unavailable")
)
