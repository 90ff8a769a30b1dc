package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	relayScheme = regexp.MustCompile(`(?i)^smtps?:`)
	httpScheme  = regexp.MustCompile(`(?i)^https?:`)
)

// ClassifyTarget 将转发目标字符串解析为目标描述。
//
// 判断顺序：smtp(s) 为 relay，http(s) 为 http，含 @ 的为 mail，其他一律失败。
//
// 参数:
//   - raw: 目标字符串
//   - ownKey: 所属转发地址的规范查找键，mail 目标不能与之相同
//
// 返回值:
//   - Target: 目标描述（ResolvedUserID 由调用方批量填充）
//   - string: mail 目标的规范查找键，其他类型为空
//   - error: ErrInvalidTarget 或 ErrSelfForward
func ClassifyTarget(raw, ownKey string) (Target, string, error) {
	value := strings.TrimSpace(raw)

	switch {
	case relayScheme.MatchString(value):
		if err := validateURI(value); err != nil {
			return Target{}, "", err
		}
		return newTarget(TargetRelay, value), "", nil

	case httpScheme.MatchString(value):
		if err := validateURI(value); err != nil {
			return Target{}, "", err
		}
		return newTarget(TargetHTTP, value), "", nil

	case strings.Contains(value, "@"):
		if hasWildcard(value) {
			return Target{}, "", fmt.Errorf("%w: %q", ErrInvalidTarget, value)
		}
		// 目标地址允许带 +（对方的子地址）
		key, _, err := canonicalize(value, true)
		if err != nil {
			return Target{}, "", fmt.Errorf("%w: %q", ErrInvalidTarget, value)
		}
		if ownKey != "" && key == ownKey {
			return Target{}, "", ErrSelfForward
		}
		return newTarget(TargetMail, value), key, nil
	}

	return Target{}, "", fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, value)
}

func newTarget(kind TargetKind, value string) Target {
	return Target{
		ID:    uuid.NewString(),
		Kind:  kind,
		Value: value,
	}
}

func validateURI(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid target url %q", ErrInvalidTarget, value)
	}
	return nil
}
