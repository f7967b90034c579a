package notification

import (
	"context"
	"sync"

	"Guardian/pkg/logger"

	"go.uber.org/zap"
)

// SMSSender 验证码短信发送
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogSMS 只记录日志的发送器，开发环境使用
type LogSMS struct {
	// RevealCode 为 true 时日志中输出明文验证码
	RevealCode bool
}

func (l LogSMS) SendCode(ctx context.Context, phone, code string) error {
	shown := "******"
	if l.RevealCode {
		shown = code
	}
	logger.Info("sms code issued", zap.String("phone", MaskPhone(phone)), zap.String("code", shown))
	return nil
}

// SentCode 一条已发送的验证码
type SentCode struct {
	Phone string
	Code  string
}

// MemorySMS 记录发送内容，测试使用
type MemorySMS struct {
	mu   sync.Mutex
	sent []SentCode
	Err  error
}

func (m *MemorySMS) SendCode(ctx context.Context, phone, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentCode{Phone: phone, Code: code})
	return nil
}

// Sent 已发送记录的拷贝
func (m *MemorySMS) Sent() []SentCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentCode(nil), m.sent...)
}

// Last 最近一条，没有时返回零值
func (m *MemorySMS) Last() SentCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentCode{}
	}
	return m.sent[len(m.sent)-1]
}

// MaskPhone 只保留末四位
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		if i < len(phone)-4 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
