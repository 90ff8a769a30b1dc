package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/service"
)

// AddressHandler 用户地址与地址解析处理器
type AddressHandler struct {
	service *service.AddressService
}

// NewAddressHandler 创建用户地址处理器
func NewAddressHandler(service *service.AddressService) *AddressHandler {
	return &AddressHandler{
		service: service,
	}
}

// CreateUserAddressRequest 创建用户地址请求
type CreateUserAddressRequest struct {
	Address       string `json:"address" binding:"required"`
	Main          bool   `json:"main"`
	AllowWildcard bool   `json:"allowWildcard"`
}

// UpdateUserAddressRequest 更新用户地址请求
type UpdateUserAddressRequest struct {
	Main *bool `json:"main"`
}

// UserAddressResponse 用户地址响应
type UserAddressResponse struct {
	ID      string    `json:"id"`
	Address string    `json:"address"`
	User    string    `json:"user"`
	Created time.Time `json:"created"`
}

// ResolveResponse 地址解析响应，Kind 为 user 或 forwarded
type ResolveResponse struct {
	Kind   string                  `json:"kind"`
	Result domain.ResolutionResult `json:"result"`
}

// CreateUserAddress godoc
// @Summary 为用户添加地址
// @Tags User Addresses
// @Accept json
// @Produce json
// @Param user path string true "用户ID"
// @Param request body CreateUserAddressRequest true "地址信息"
// @Success 201 {object} UserAddressResponse
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/users/{user}/addresses [post]
func (h *AddressHandler) CreateUserAddress(c *gin.Context) {
	var req CreateUserAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, err := h.service.CreateUserAddress(c.Request.Context(), service.CreateUserAddressInput{
		UserID:        c.Param("user"),
		Address:       req.Address,
		MakeDefault:   req.Main,
		AllowWildcard: req.AllowWildcard,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	ub, _ := record.User()
	Created(c, UserAddressResponse{
		ID:      record.ID,
		Address: record.Address,
		User:    ub.UserID,
		Created: record.CreatedAt,
	})
}

// ListUserAddresses godoc
// @Summary 获取用户的全部地址
// @Tags User Addresses
// @Produce json
// @Param user path string true "用户ID"
// @Success 200 {array} domain.UserAddressEntry
// @Failure 404 {object} Response
// @Router /v1/users/{user}/addresses [get]
func (h *AddressHandler) ListUserAddresses(c *gin.Context) {
	entries, err := h.service.ListUserAddresses(c.Request.Context(), c.Param("user"))
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, entries)
}

// UpdateUserAddress godoc
// @Summary 将用户地址设为主地址
// @Description 不支持取消主地址，只能把另一个地址设为主地址
// @Tags User Addresses
// @Accept json
// @Produce json
// @Param user path string true "用户ID"
// @Param id path string true "地址ID"
// @Param request body UpdateUserAddressRequest true "{\"main\": true}"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/users/{user}/addresses/{id} [put]
func (h *AddressHandler) UpdateUserAddress(c *gin.Context) {
	var req UpdateUserAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if req.Main == nil || !*req.Main {
		BadRequest(c, MsgMainOnly)
		return
	}

	if err := h.service.PromoteToDefault(c.Request.Context(), c.Param("user"), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}

	Success(c, gin.H{"id": c.Param("id"), "main": true})
}

// DeleteUserAddress godoc
// @Summary 删除用户地址
// @Tags User Addresses
// @Produce json
// @Param user path string true "用户ID"
// @Param id path string true "地址ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/users/{user}/addresses/{id} [delete]
func (h *AddressHandler) DeleteUserAddress(c *gin.Context) {
	if err := h.service.DeleteUserAddress(c.Request.Context(), c.Param("user"), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}

	Deleted(c)
}

// Resolve godoc
// @Summary 解析地址
// @Description 参数可以是地址 ID 或地址字符串，只做精确匹配
// @Tags Addresses
// @Produce json
// @Param address path string true "地址ID或地址"
// @Success 200 {object} ResolveResponse
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/addresses/resolve/{address} [get]
func (h *AddressHandler) Resolve(c *gin.Context) {
	result, err := h.service.Resolve(c.Request.Context(), c.Param("address"))
	if err != nil {
		Fail(c, err)
		return
	}

	kind := "forwarded"
	if _, ok := result.(domain.UserAddress); ok {
		kind = "user"
	}
	Success(c, ResolveResponse{Kind: kind, Result: result})
}
