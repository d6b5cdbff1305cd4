package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient 封装 HTTP 客户端
type APIClient struct {
	BaseURL    string
	Token      string
	UserID     string
	HTTPClient *http.Client
}

// NewAPIClient 创建新的 API 客户端
// 生成路线图需要等待外部文本生成，超时放宽到 2 分钟
func NewAPIClient(cfg *Config) *APIClient {
	return &APIClient{
		BaseURL:    cfg.ServerURL,
		Token:      cfg.Token,
		UserID:     cfg.UserID,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// apiError 服务端错误信封
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Get 发送 GET 请求
func (c *APIClient) Get(ctx context.Context, path string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// Request 发送带 JSON body 的请求
func (c *APIClient) Request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.doRequest(ctx, method, path, reader)
}

// doRequest 执行 HTTP 请求
func (c *APIClient) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	} else if c.UserID != "" {
		req.Header.Set("X-User-ID", c.UserID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed (check STUDYSPHERE_SERVER_URL=%s): %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode, Message: string(data)}
		var env struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(data, &env) == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Message += " (check STUDYSPHERE_TOKEN)"
		}
		return nil, apiErr
	}

	return data, nil
}
