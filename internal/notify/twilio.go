package notify

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

var ErrNotConfigured = errors.New("messaging gateway is not configured")

type (
	Message struct {
		From     string
		To       string
		Body     string
		MediaURL string
	}

	messageResp struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}

	errorResp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	// Twilio sends SMS/MMS through the Programmable Messaging REST API.
	Twilio struct {
		client     *resty.Client
		accountSID string
		logger     *zap.SugaredLogger
	}
)

func NewTwilio(cfg *config.Config, logger *zap.SugaredLogger) *Twilio {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.TwilioBaseURL, "/")).
		SetBasicAuth(cfg.TwilioAccountSID, cfg.TwilioAuthToken).
		SetHeader("Accept", "application/json")

	return &Twilio{
		client:     client,
		accountSID: cfg.TwilioAccountSID,
		logger:     logger,
	}
}

// Send posts one message and returns the gateway's message sid.
func (t *Twilio) Send(ctx context.Context, msg Message) (string, error) {
	if t.accountSID == "" {
		return "", ErrNotConfigured
	}
	if msg.To == "" {
		return "", errors.New("message has no recipient")
	}

	form := map[string]string{
		"From": msg.From,
		"To":   msg.To,
		"Body": msg.Body,
	}
	if msg.MediaURL != "" {
		form["MediaUrl"] = msg.MediaURL
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("sid", t.accountSID).
		SetFormData(form).
		SetResult(&messageResp{}).
		SetError(&errorResp{}).
		Post("/2010-04-01/Accounts/{sid}/Messages.json")
	if err != nil {
		return "", errors.Wrap(err, "post message")
	}

	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		if e, ok := resp.Error().(*errorResp); ok && e.Message != "" {
			return "", errors.Errorf("gateway returned %d: %s (code %d)", resp.StatusCode(), e.Message, e.Code)
		}
		return "", errors.Errorf("gateway returned %d", resp.StatusCode())
	}

	result, ok := resp.Result().(*messageResp)
	if !ok || result.SID == "" {
		return "", errors.New("gateway response has no message sid")
	}

	t.logger.Debugw("message queued", "sid", result.SID, "status", result.Status)
	return result.SID, nil
}
