package domain

import "time"

// AddressRecord 表示地址目录中的一个条目。
//
// Binding 决定条目类型：UserBinding 为用户地址，*ForwardBinding 为转发地址。
// 两者互斥，由类型系统保证。
type AddressRecord struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`      // 展示形式（已大小写/Unicode 归一，未折叠点号）
	CanonicalKey string    `json:"canonicalKey"` // 全局唯一的查找键
	CreatedAt    time.Time `json:"createdAt"`
	Binding      Binding   `json:"-"`
}

// Binding 是地址条目的归属（封闭的和类型）。
type Binding interface {
	binding()
}

// UserBinding 用户地址：归属于某个拥有邮箱的用户。
type UserBinding struct {
	UserID string `json:"userId"`
}

func (UserBinding) binding() {}

// ForwardBinding 转发地址：没有所属用户，邮件被转发到目标列表。
type ForwardBinding struct {
	Targets      []Target  `json:"targets"`
	ForwardQuota int       `json:"forwardQuota"` // 每日允许转发数，0 表示使用平台默认值
	Autoreply    Autoreply `json:"autoreply"`
	Disabled     bool      `json:"disabled"` // 暂停转发但保留条目
}

func (*ForwardBinding) binding() {}

// EffectiveQuota 返回生效的每日转发上限，未设置时回退到平台默认值。
func (fb *ForwardBinding) EffectiveQuota(platformDefault int) int {
	if fb.ForwardQuota > 0 {
		return fb.ForwardQuota
	}
	return platformDefault
}

// User 返回用户归属。
func (r *AddressRecord) User() (UserBinding, bool) {
	ub, ok := r.Binding.(UserBinding)
	return ub, ok
}

// Forwarding 返回转发配置。
func (r *AddressRecord) Forwarding() (*ForwardBinding, bool) {
	fb, ok := r.Binding.(*ForwardBinding)
	return fb, ok && fb != nil
}

// OwnedBy 判断是否为指定用户的地址。
func (r *AddressRecord) OwnedBy(userID string) bool {
	ub, ok := r.User()
	return ok && ub.UserID == userID
}

// HasWildcard 判断地址是否为通配地址。
func (r *AddressRecord) HasWildcard() bool {
	return hasWildcard(r.Address)
}

// TargetKind 转发目标类型
type TargetKind string

const (
	TargetMail  TargetKind = "mail"
	TargetRelay TargetKind = "relay"
	TargetHTTP  TargetKind = "http"
)

// Target 单个转发目标。
type Target struct {
	ID             string     `json:"id"`
	Kind           TargetKind `json:"type"`
	Value          string     `json:"value"`
	ResolvedUserID string     `json:"user,omitempty"` // 仅 mail 类型且目标为本地用户地址时存在
}

// Autoreply 转发地址的自动回复配置。
type Autoreply struct {
	Enabled bool       `json:"status"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
	Name    string     `json:"name"`
	Subject string     `json:"subject"`
	Text    string     `json:"text"`
	HTML    string     `json:"html"`
}

// User 地址所属用户的引用，生命周期由外部维护。
type User struct {
	ID             string `json:"id"`
	DefaultAddress string `json:"address"` // 当前主地址，空表示还没有
}

// QuotaUsage 配额计数器的当前读数。
type QuotaUsage struct {
	Count int64
	TTL   time.Duration // <= 0 表示计数器不存在或无过期时间
}

// ForwardingStatus 转发配额状态。
type ForwardingStatus struct {
	Allowed    int   `json:"allowed"`
	Used       int64 `json:"used"`
	TTLSeconds int64 `json:"ttl"`     // 仅 Bounded 为 true 时有意义
	Bounded    bool  `json:"bounded"` // false 表示当前没有计数窗口
}

// ResolutionResult 地址解析结果（UserAddress 或 ForwardedAddress）。
type ResolutionResult interface {
	resolution()
}

// UserAddress 解析为用户地址。
type UserAddress struct {
	AddressID string    `json:"id"`
	Address   string    `json:"address"`
	UserID    string    `json:"user"`
	CreatedAt time.Time `json:"created"`
}

func (UserAddress) resolution() {}

// ForwardedAddress 解析为转发地址。
type ForwardedAddress struct {
	AddressID string    `json:"id"`
	Address   string    `json:"address"`
	Targets   []Target  `json:"targets"`
	Quota     int       `json:"forwards"` // 生效的每日配额（已回退到平台默认值）
	Disabled  bool      `json:"forwardedDisabled"`
	Autoreply bool      `json:"autoreply"` // 解析时刻自动回复是否生效
	CreatedAt time.Time `json:"created"`
}

func (ForwardedAddress) resolution() {}

// UserAddressEntry 用户地址列表项，Main 由用户当前主地址推导。
type UserAddressEntry struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Main      bool      `json:"main"`
	CreatedAt time.Time `json:"created"`
}

// ForwardedAddressDetail 转发地址的完整信息与当前配额状态。
type ForwardedAddressDetail struct {
	ID           string           `json:"id"`
	Address      string           `json:"address"`
	Targets      []Target         `json:"targets"`
	ForwardQuota int              `json:"forwards"`
	Autoreply    Autoreply        `json:"autoreply"`
	Disabled     bool             `json:"forwardedDisabled"`
	CreatedAt    time.Time        `json:"created"`
	Limits       ForwardingStatus `json:"limits"`
}
