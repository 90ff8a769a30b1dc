package httptransport

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/service"
)

var errInvalidTimestamp = errors.New("invalid timestamp")

// ForwardingHandler 转发地址处理器
type ForwardingHandler struct {
	service *service.ForwardingService
}

// NewForwardingHandler 创建转发地址处理器
func NewForwardingHandler(service *service.ForwardingService) *ForwardingHandler {
	return &ForwardingHandler{
		service: service,
	}
}

// AutoreplyRequest 自动回复配置，缺省字段表示不修改
//
// start/end 使用 RFC 3339，空字符串表示清除该边界。
type AutoreplyRequest struct {
	Status  *bool   `json:"status"`
	Start   *string `json:"start"`
	End     *string `json:"end"`
	Name    *string `json:"name"`
	Subject *string `json:"subject"`
	Text    *string `json:"text"`
	HTML    *string `json:"html"`
}

// CreateForwardedAddressRequest 创建转发地址请求
type CreateForwardedAddressRequest struct {
	Address       string            `json:"address" binding:"required"`
	Targets       []string          `json:"targets" binding:"required,min=1"`
	Forwards      int               `json:"forwards" binding:"min=0"`
	AllowWildcard bool              `json:"allowWildcard"`
	Autoreply     *AutoreplyRequest `json:"autoreply"`
}

// UpdateForwardedAddressRequest 更新转发地址请求
type UpdateForwardedAddressRequest struct {
	Targets           *[]string         `json:"targets"`
	Forwards          *int              `json:"forwards"`
	Autoreply         *AutoreplyRequest `json:"autoreply"`
	ForwardedDisabled *bool             `json:"forwardedDisabled"`
}

// ForwardedAddressResponse 转发地址响应
type ForwardedAddressResponse struct {
	ID                string           `json:"id"`
	Address           string           `json:"address"`
	Targets           []domain.Target  `json:"targets"`
	Forwards          int              `json:"forwards"`
	Autoreply         domain.Autoreply `json:"autoreply"`
	ForwardedDisabled bool             `json:"forwardedDisabled"`
	Created           time.Time        `json:"created"`
}

// CreateForwardedAddress godoc
// @Summary 创建转发地址
// @Tags Forwarded Addresses
// @Accept json
// @Produce json
// @Param request body CreateForwardedAddressRequest true "转发地址信息"
// @Success 201 {object} ForwardedAddressResponse
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /v1/addresses/forwarded [post]
func (h *ForwardingHandler) CreateForwardedAddress(c *gin.Context) {
	var req CreateForwardedAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	autoreply, err := req.Autoreply.toPatch()
	if err != nil {
		BadRequest(c, MsgInvalidTimestamp)
		return
	}

	record, err := h.service.CreateForwardedAddress(c.Request.Context(), service.CreateForwardedAddressInput{
		Address:       req.Address,
		Targets:       req.Targets,
		ForwardQuota:  req.Forwards,
		AllowWildcard: req.AllowWildcard,
		Autoreply:     autoreply,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	fb, _ := record.Forwarding()
	Created(c, ForwardedAddressResponse{
		ID:                record.ID,
		Address:           record.Address,
		Targets:           fb.Targets,
		Forwards:          fb.ForwardQuota,
		Autoreply:         fb.Autoreply,
		ForwardedDisabled: fb.Disabled,
		Created:           record.CreatedAt,
	})
}

// GetForwardedAddress godoc
// @Summary 获取转发地址详情与配额状态
// @Tags Forwarded Addresses
// @Produce json
// @Param id path string true "地址ID"
// @Success 200 {object} domain.ForwardedAddressDetail
// @Failure 404 {object} Response
// @Router /v1/addresses/forwarded/{id} [get]
func (h *ForwardingHandler) GetForwardedAddress(c *gin.Context) {
	detail, err := h.service.GetForwardedAddress(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, detail)
}

// GetForwardingStatus godoc
// @Summary 获取转发配额状态
// @Tags Forwarded Addresses
// @Produce json
// @Param id path string true "地址ID"
// @Success 200 {object} domain.ForwardingStatus
// @Failure 404 {object} Response
// @Router /v1/addresses/forwarded/{id}/limits [get]
func (h *ForwardingHandler) GetForwardingStatus(c *gin.Context) {
	status, err := h.service.GetForwardingStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, status)
}

// UpdateForwardedAddress godoc
// @Summary 更新转发地址
// @Description targets 整体替换；forwards、forwardedDisabled 与 autoreply 按字段合并
// @Tags Forwarded Addresses
// @Accept json
// @Produce json
// @Param id path string true "地址ID"
// @Param request body UpdateForwardedAddressRequest true "更新内容"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/addresses/forwarded/{id} [put]
func (h *ForwardingHandler) UpdateForwardedAddress(c *gin.Context) {
	var req UpdateForwardedAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	autoreply, err := req.Autoreply.toPatch()
	if err != nil {
		BadRequest(c, MsgInvalidTimestamp)
		return
	}

	err = h.service.UpdateForwardedAddress(c.Request.Context(), c.Param("id"), service.UpdateForwardedAddressInput{
		Targets:      req.Targets,
		ForwardQuota: req.Forwards,
		Autoreply:    autoreply,
		Disabled:     req.ForwardedDisabled,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, gin.H{"id": c.Param("id")})
}

// DeleteForwardedAddress godoc
// @Summary 删除转发地址
// @Tags Forwarded Addresses
// @Produce json
// @Param id path string true "地址ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/addresses/forwarded/{id} [delete]
func (h *ForwardingHandler) DeleteForwardedAddress(c *gin.Context) {
	if err := h.service.DeleteForwardedAddress(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}

	Deleted(c)
}

// toPatch 转换为自动回复补丁，nil 请求返回 nil
func (r *AutoreplyRequest) toPatch() (*domain.AutoreplyPatch, error) {
	if r == nil {
		return nil, nil
	}

	start, err := parseBound(r.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseBound(r.End)
	if err != nil {
		return nil, err
	}

	return &domain.AutoreplyPatch{
		Enabled: r.Status,
		Start:   start,
		End:     end,
		Name:    r.Name,
		Subject: r.Subject,
		Text:    r.Text,
		HTML:    r.HTML,
	}, nil
}

// parseBound 空字符串返回零值时间（清除边界）
func parseBound(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	if *value == "" {
		return &time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, errInvalidTimestamp
	}
	return &t, nil
}
