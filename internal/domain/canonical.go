package domain

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// RFC 5321 长度限制
const (
	MaxAddressLength   = 254
	MaxLocalPartLength = 64
)

// Wildcard 通配符标记
const Wildcard = "*"

// Canonicalize 将原始地址转换为规范查找键。
//
// 处理步骤：
//  1. NFC 归一化并做 Unicode 大小写折叠（与区域设置无关）
//  2. 在第一个未转义的 @ 处拆分本地部分与域名
//  3. 域名转换为 Unicode 形式（IDNA）
//  4. 查找键 = 去掉所有点号的本地部分 + "@" + 域名
//
// 返回值:
//   - key: 规范查找键，两个地址相同当且仅当查找键相同
//   - normalized: 展示形式（已归一，未折叠点号）
func Canonicalize(raw string) (key, normalized string, err error) {
	return canonicalize(raw, false)
}

func canonicalize(raw string, allowPlus bool) (key, normalized string, err error) {
	addr := foldAddress(raw)
	if addr == "" {
		return "", "", fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	// + 保留给子地址，目录条目一律拒绝
	if !allowPlus && strings.Contains(addr, "+") {
		return "", "", fmt.Errorf("%w: address can not contain +", ErrInvalidAddress)
	}

	local, domainPart, err := splitAddress(addr)
	if err != nil {
		return "", "", err
	}

	if domainPart != Wildcard {
		domainPart, err = cleanDomain(domainPart)
		if err != nil {
			return "", "", err
		}
	}

	normalized = local + "@" + domainPart
	if len(normalized) > MaxAddressLength {
		return "", "", fmt.Errorf("%w: address too long", ErrInvalidAddress)
	}

	folded := strings.ReplaceAll(local, ".", "")
	if folded == "" {
		return "", "", fmt.Errorf("%w: invalid local part", ErrInvalidAddress)
	}

	return folded + "@" + domainPart, normalized, nil
}

// CanonicalKey 只返回查找键。
func CanonicalKey(raw string) (string, error) {
	key, _, err := Canonicalize(raw)
	return key, err
}

// SameAddress 判断两个原始地址是否指向同一个目录条目。
func SameAddress(a, b string) bool {
	ka, errA := CanonicalKey(a)
	kb, errB := CanonicalKey(b)
	return errA == nil && errB == nil && ka == kb
}

// ValidateAddress 校验目录地址的结构规则并返回规范形式。
//
// 通配地址只允许 "*@domain" 或 "user@*" 两种形式，且 * 只能出现一次。
func ValidateAddress(raw string, allowWildcard bool) (key, normalized string, err error) {
	key, normalized, err = Canonicalize(raw)
	if err != nil {
		return "", "", err
	}

	if n := strings.Count(normalized, Wildcard); n > 0 {
		if !allowWildcard {
			return "", "", fmt.Errorf("%w: address can not contain *", ErrInvalidAddress)
		}
		if n > 1 || !(strings.HasPrefix(normalized, "*@") || strings.HasSuffix(normalized, "@*")) {
			return "", "", fmt.Errorf(`%w: invalid wildcard address, use "*@domain" or "user@*"`, ErrInvalidAddress)
		}
	}

	return key, normalized, nil
}

func hasWildcard(address string) bool {
	return strings.Contains(address, Wildcard)
}

// foldAddress 归一化整个地址字符串。
func foldAddress(raw string) string {
	s := strings.TrimSpace(raw)
	// cases.Caser 有状态，不能跨 goroutine 共享
	s = cases.Fold().String(norm.NFC.String(s))
	return norm.NFC.String(s)
}

// splitAddress 在第一个未转义（且不在引号内）的 @ 处拆分地址。
func splitAddress(addr string) (local, domainPart string, err error) {
	at := -1
	quoted := false
	escaped := false
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == '@' && !quoted:
			at = i
		}
		if at >= 0 {
			break
		}
	}

	if at < 0 {
		return "", "", fmt.Errorf("%w: missing @", ErrInvalidAddress)
	}

	local, domainPart = addr[:at], addr[at+1:]
	if strings.Contains(domainPart, "@") {
		return "", "", fmt.Errorf("%w: more than one @", ErrInvalidAddress)
	}
	if local == "" || domainPart == "" {
		return "", "", fmt.Errorf("%w: empty local part or domain", ErrInvalidAddress)
	}
	if len(local) > MaxLocalPartLength {
		return "", "", fmt.Errorf("%w: local part too long (max 64 chars)", ErrInvalidAddress)
	}
	if !validLocalPart(local) {
		return "", "", fmt.Errorf("%w: invalid local part", ErrInvalidAddress)
	}

	return local, domainPart, nil
}

// validLocalPart 拒绝未加引号的特殊字符与控制字符。
func validLocalPart(local string) bool {
	if strings.HasPrefix(local, `"`) && strings.HasSuffix(local, `"`) && len(local) >= 2 {
		return true
	}
	for _, r := range local {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(` "(),:;<>[\]`, r) {
			return false
		}
	}
	return true
}

// cleanDomain 校验域名并转换为小写 Unicode 形式。
func cleanDomain(domainPart string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(domainPart, "."))
	if err != nil || ascii == "" {
		return "", fmt.Errorf("%w: invalid domain %q", ErrInvalidAddress, domainPart)
	}

	uDomain, err := idna.ToUnicode(ascii)
	if err != nil {
		return "", fmt.Errorf("%w: invalid domain %q", ErrInvalidAddress, domainPart)
	}

	return strings.ToLower(norm.NFC.String(uDomain)), nil
}
