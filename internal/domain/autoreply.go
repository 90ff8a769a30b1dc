package domain

import (
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// MaxAutoreplySubjectLength 自动回复主题最大长度
const MaxAutoreplySubjectLength = 255

// 自动回复 HTML 会原样发送给外部发件人，写入前去掉脚本与事件属性
var autoreplyPolicy = bluemonday.UGCPolicy()

// AutoreplyPatch 自动回复的部分更新，nil 字段表示不修改。
//
// Start/End 指向零值时间表示清除该边界。
type AutoreplyPatch struct {
	Enabled *bool
	Start   *time.Time
	End     *time.Time
	Name    *string
	Subject *string
	Text    *string
	HTML    *string
}

// Empty 判断补丁是否没有任何字段。
func (p *AutoreplyPatch) Empty() bool {
	return p == nil || (p.Enabled == nil && p.Start == nil && p.End == nil &&
		p.Name == nil && p.Subject == nil && p.Text == nil && p.HTML == nil)
}

// Apply 将补丁逐字段合并到当前配置。
//
// text 与 html 保持同在：只把其中一个显式置空时，另一个也被置空，
// 避免只剩下过期的 HTML 或纯文本部分。
func (p *AutoreplyPatch) Apply(cur Autoreply) (Autoreply, error) {
	if p == nil {
		return cur, nil
	}

	if p.Enabled != nil {
		cur.Enabled = *p.Enabled
	}
	if p.Start != nil {
		cur.Start = boundValue(*p.Start)
	}
	if p.End != nil {
		cur.End = boundValue(*p.End)
	}
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.Subject != nil {
		cur.Subject = *p.Subject
	}
	if p.Text != nil {
		cur.Text = *p.Text
		if cur.Text == "" && p.HTML == nil {
			cur.HTML = ""
		}
	}
	if p.HTML != nil {
		cur.HTML = autoreplyPolicy.Sanitize(*p.HTML)
		if *p.HTML == "" && p.Text == nil {
			cur.Text = ""
		}
	}

	if err := cur.Validate(); err != nil {
		return Autoreply{}, err
	}
	return cur, nil
}

// Validate 校验自动回复配置。
func (a Autoreply) Validate() error {
	if a.Start != nil && a.End != nil && a.End.Before(*a.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidAutoreply)
	}
	if len(a.Subject) > MaxAutoreplySubjectLength {
		return fmt.Errorf("%w: subject too long", ErrInvalidAutoreply)
	}
	return nil
}

// ActiveAt 判断自动回复在给定时间是否生效。
func (a Autoreply) ActiveAt(t time.Time) bool {
	if !a.Enabled {
		return false
	}
	if a.Start != nil && t.Before(*a.Start) {
		return false
	}
	if a.End != nil && t.After(*a.End) {
		return false
	}
	return true
}

func boundValue(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
