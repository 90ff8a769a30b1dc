package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"addrdir/backend/internal/domain"
)

// errorMapping 业务错误到 HTTP 状态码与中文消息的映射
type errorMapping struct {
	err    error
	status int
	msg    string
}

// 按顺序匹配，使用 errors.Is 以支持包装后的错误
var errorMappings = []errorMapping{
	{domain.ErrInvalidAddress, http.StatusBadRequest, "地址格式无效"},
	{domain.ErrInvalidTarget, http.StatusBadRequest, "转发目标无效"},
	{domain.ErrSelfForward, http.StatusBadRequest, "地址不能转发给自己"},
	{domain.ErrInvalidAutoreply, http.StatusBadRequest, "自动回复配置无效"},
	{domain.ErrInvalidQuota, http.StatusBadRequest, "转发配额无效"},
	{domain.ErrWildcardNotAllowedAsDefault, http.StatusBadRequest, "通配地址不能设为主地址"},
	{domain.ErrAddressExists, http.StatusConflict, "地址已存在"},
	{domain.ErrCannotDeleteDefault, http.StatusConflict, "不能删除主地址，请先设置其他主地址"},
	{domain.ErrAddressNotFound, http.StatusNotFound, "地址不存在"},
	{domain.ErrOwnerNotFound, http.StatusNotFound, "用户不存在"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "存储暂时不可用，请稍后重试"},
}

// Fail 根据业务错误返回对应的错误响应，未知错误返回 500
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)

	if m, ok := lookupError(err); ok {
		Error(c, m.status, m.msg)
		return
	}
	InternalError(c, MsgInternalError)
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidTimestamp = "时间格式无效，请使用 RFC 3339"
	MsgMainOnly         = "只支持将地址设为主地址（main: true）"
	MsgInternalError    = "服务器内部错误"
)
