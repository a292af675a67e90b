package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MailRequest 邮件网关请求
type MailRequest struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// MailResponse 邮件网关响应
type MailResponse struct {
	Status int             `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// MailClient 邮件网关客户端。
// 邀请邮件发送失败不影响邀请创建：token 会在创建响应里返回一次，
// 管理员可以自行转发。
type MailClient struct {
	httpClient *resty.Client
	fromAddr   string
	logger     *zap.Logger
}

// NewMailClient 创建邮件网关客户端
func NewMailClient(baseURL, apiKey, fromAddr string, logger *zap.Logger) *MailClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &MailClient{
		httpClient: client,
		fromAddr:   fromAddr,
		logger:     logger,
	}
}

// SendInvitation 发送邀请邮件（token 原样交给网关模板渲染链接）
func (c *MailClient) SendInvitation(to, tenantName, role, token string, expiresAt time.Time) error {
	request := MailRequest{
		From:     c.fromAddr,
		To:       to,
		Template: "tenant-invitation",
		Data: map[string]any{
			"tenant_name": tenantName,
			"role":        role,
			"token":       token,
			"expires_at":  expiresAt.Format(time.RFC3339),
		},
	}

	var response MailResponse
	resp, err := c.httpClient.R().
		SetBody(request).
		SetResult(&response).
		Post("/mail/send")

	if err != nil {
		c.logger.Error("Mail gateway call failed",
			zap.String("to", to),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call mail gateway: %w", err)
	}

	if resp.StatusCode() >= 300 || response.Status != 0 {
		c.logger.Error("Mail gateway returned error",
			zap.String("to", to),
			zap.Int("http_status", resp.StatusCode()),
			zap.Int("status", response.Status),
			zap.String("msg", response.Msg),
		)
		return fmt.Errorf("mail gateway error: %s (status: %d)", response.Msg, response.Status)
	}

	c.logger.Info("Invitation mail sent",
		zap.String("to", to),
		zap.String("tenant_name", tenantName),
	)
	return nil
}
