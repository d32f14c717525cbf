// Package chatbot provides a client for an external conversational reply
// service. The gateway forwards inbound text to the service and relays the
// generated reply.
package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wagate/internal/constants"
	apperrors "wagate/internal/errors"

	"github.com/sirupsen/logrus"
)

type Client interface {
	GetReply(ctx context.Context, sender, message string) (string, error)
}

// ReplyRequest is the body posted to the reply endpoint.
type ReplyRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// ReplyResponse is the body returned by the reply endpoint.
type ReplyResponse struct {
	Reply string `json:"reply"`
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(baseURL string, httpClient *http.Client) Client {
	return NewClientWithLogger(baseURL, httpClient, nil)
}

func NewClientWithLogger(baseURL string, httpClient *http.Client, logger *logrus.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(constants.DefaultChatBotTimeoutSec) * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
		logger:  logger,
	}
}

// GetReply posts the sender and message to the reply service and returns the
// generated reply text.
func (c *HTTPClient) GetReply(ctx context.Context, sender, message string) (string, error) {
	jsonData, err := json.Marshal(ReplyRequest{Sender: sender, Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/reply", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithField("endpoint", endpoint).Debug("Requesting chatbot reply")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.WrapRetryable(err, apperrors.ErrCodeChatBotAPI, "failed to reach chatbot service")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.New(apperrors.ErrCodeChatBotAPI,
			fmt.Sprintf("chatbot service returned status %d: %s", resp.StatusCode, string(body)))
	}

	var reply ReplyResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return reply.Reply, nil
}
