package smtp

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"addrdir/backend/internal/domain"
	"addrdir/backend/internal/monitoring"
)

// 单次收件人查询的超时
const resolveTimeout = 5 * time.Second

// Resolver 地址解析接口，由 service.AddressService 实现
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (domain.ResolutionResult, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只做收件人验证的 SMTP 服务：RCPT TO 按目录精确匹配，
// 不回退到通配地址，DATA 一律拒绝，不接收也不中继任何邮件。
type Backend struct {
	resolver Resolver
	limiter  *ConnectionLimiter // 可选
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewBackend 创建 SMTP Backend，limiter 可以为 nil
func NewBackend(resolver Resolver, limiter *ConnectionLimiter, logger *zap.Logger, metrics *monitoring.Metrics) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{
		resolver: resolver,
		limiter:  limiter,
		logger:   logger,
		metrics:  metrics,
	}
}

// NewSession 创建新的 SMTP 会话，超出限流时返回 421。
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		b.metrics.RecordSessionLimited()
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		backend: b,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// session 的 ctx 随连接结束（Logout）取消
type session struct {
	backend  *Backend
	ctx      context.Context
	cancel   context.CancelFunc
	released bool
}

// Mail 处理 MAIL 命令，发件人不参与验证。
func (s *session) Mail(string, *gosmtp.MailOptions) error {
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 找到地址返回 250；地址不存在返回 550 5.1.1；
// 地址格式无效返回 501 5.1.3；其他错误（存储不可用等）返回 451 4.3.0。
// 子地址（local+tag@domain）按基础地址验证。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr, ok := recipientAddress(to)
	if !ok {
		s.backend.metrics.RecordRecipientCheck("invalid")
		return errInvalidRecipient
	}

	ctx, cancel := context.WithTimeout(s.ctx, resolveTimeout)
	defer cancel()

	_, err := s.backend.resolver.Resolve(ctx, addr)
	switch {
	case err == nil:
		s.backend.metrics.RecordRecipientCheck("accepted")
		return nil
	case errors.Is(err, domain.ErrAddressNotFound):
		s.backend.metrics.RecordRecipientCheck("unknown")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient address not found",
		}
	case errors.Is(err, domain.ErrInvalidAddress):
		s.backend.metrics.RecordRecipientCheck("invalid")
		return errInvalidRecipient
	default:
		s.backend.metrics.RecordRecipientCheck("error")
		s.backend.logger.Warn("recipient lookup failed",
			zap.String("recipient", addr),
			zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary failure, try again later",
		}
	}
}

var errInvalidRecipient = &gosmtp.SMTPError{
	Code:         501,
	EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
	Message:      "invalid recipient address",
}

// Data 拒绝邮件内容，本服务不投递邮件。
func (s *session) Data(r io.Reader) error {
	_, _ = io.Copy(io.Discard, r)
	return &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "this server only verifies recipients",
	}
}

// Reset 会话不保存事务状态，无需处理
func (s *session) Reset() {}

// Logout 会话结束，取消进行中的查询并释放限流器占用。
func (s *session) Logout() error {
	s.cancel()
	if !s.released && s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	s.released = true
	return nil
}

// recipientAddress 取出 RCPT 参数中的地址并去掉子地址标签。
//
// 不含 @ 的参数（例如裸地址 ID）不是收件人地址。
func recipientAddress(to string) (string, bool) {
	addr := strings.Trim(strings.TrimSpace(to), "<>")
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return "", false
	}
	local, domainPart := addr[:at], addr[at:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	return local + domainPart, true
}
