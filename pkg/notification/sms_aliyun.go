package notification

import (
	"context"
	"fmt"
)

type AliyunSMSConfig struct {
	AccessKeyId     string
	AccessKeySecret string
	SignName        string
	TemplateCode    string
	Endpoint        string // 默认 cn-hangzhou
}

type AliyunSMS struct {
	cfg AliyunSMSConfig
	cli AliyunSMSClient
}

// AliyunSMSClient 便于替换/注入的发送接口（适配真实 SDK）
type AliyunSMSClient interface {
	Send(ctx context.Context, phone, sign, template string, params map[string]string) error
}

var _ SMSSender = (*AliyunSMS)(nil)

func NewAliyunSMS(cfg AliyunSMSConfig, cli AliyunSMSClient) *AliyunSMS {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "cn-hangzhou"
	}
	return &AliyunSMS{cfg: cfg, cli: cli}
}

func (a *AliyunSMS) SendCode(ctx context.Context, phone, code string) error {
	if a.cli == nil {
		return fmt.Errorf("AliyunSMSClient not configured")
	}
	if a.cfg.SignName == "" || a.cfg.TemplateCode == "" {
		return fmt.Errorf("aliyun sms sign name and template code are required")
	}
	params := map[string]string{"code": code}
	if err := a.cli.Send(ctx, phone, a.cfg.SignName, a.cfg.TemplateCode, params); err != nil {
		return fmt.Errorf("send sms to %s: %w", MaskPhone(phone), err)
	}
	return nil
}
