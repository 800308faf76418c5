package textsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"cgp/internal/pipeline/ports"
)

// Config 文本处理服务客户端配置
type Config struct {
	BaseURL      string
	Timeout      time.Duration // 单次 HTTP 请求超时
	PollAttempts int           // 查重结果最大轮询次数
	PollInterval time.Duration // 查重结果轮询间隔
}

// Client 文本处理服务 HTTP 客户端
// 实现全部六个协作方端口；查重为 提交->轮询 模式，
// 轮询次数有上限（有界重试契约在此边界内兑现）
type Client struct {
	baseURL      string
	http         *http.Client
	pollAttempts int
	pollInterval time.Duration
}

var (
	_ ports.Generator         = (*Client)(nil)
	_ ports.UniquenessChecker = (*Client)(nil)
	_ ports.Rewriter          = (*Client)(nil)
	_ ports.SEOOptimizer      = (*Client)(nil)
	_ ports.Humanizer         = (*Client)(nil)
	_ ports.QualityScorer     = (*Client)(nil)
)

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pollAttempts := cfg.PollAttempts
	if pollAttempts <= 0 {
		pollAttempts = 10
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		pollAttempts: pollAttempts,
		pollInterval: pollInterval,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Collaborators 以本客户端填充全部端口
func (c *Client) Collaborators() ports.Collaborators {
	return ports.Collaborators{
		Generator: c,
		Checker:   c,
		Rewriter:  c,
		SEO:       c,
		Humanizer: c,
		Scorer:    c,
	}
}

// textResponse 通用文本响应
type textResponse struct {
	Text string `json:"text"`
}

// Generate 文本生成
func (c *Client) Generate(ctx context.Context, prompt string, constraints ports.GenerationConstraints) (string, error) {
	req := struct {
		Prompt   string `json:"prompt"`
		Length   int    `json:"length"`
		Tone     string `json:"tone"`
		Audience string `json:"audience"`
		Keywords string `json:"keywords"`
	}{
		Prompt:   prompt,
		Length:   constraints.Length,
		Tone:     constraints.Tone,
		Audience: constraints.Audience,
		Keywords: constraints.Keywords,
	}

	var resp textResponse
	if err := c.postJSON(ctx, "/v1/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Check 查重（提交 + 有界轮询）
func (c *Client) Check(ctx context.Context, text string) (*ports.UniquenessReport, error) {
	submitReq := struct {
		Text string `json:"text"`
	}{Text: text}

	var submitResp struct {
		CheckID string `json:"check_id"`
	}
	if err := c.postJSON(ctx, "/v1/uniqueness/checks", submitReq, &submitResp); err != nil {
		return nil, err
	}
	if submitResp.CheckID == "" {
		return nil, fmt.Errorf("uniqueness submit returned empty check_id")
	}

	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		var pollResp struct {
			Status             string           `json:"status"` // pending/done
			Score              float64          `json:"score"`
			DuplicateFragments []ports.Fragment `json:"duplicate_fragments"`
		}
		path := fmt.Sprintf("/v1/uniqueness/checks/%s", submitResp.CheckID)
		if err := c.getJSON(ctx, path, &pollResp); err != nil {
			return nil, err
		}

		if pollResp.Status == "done" {
			return &ports.UniquenessReport{
				Score:              pollResp.Score,
				DuplicateFragments: pollResp.DuplicateFragments,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return nil, fmt.Errorf("uniqueness check not ready after %d attempts: check_id=%s", c.pollAttempts, submitResp.CheckID)
}

// Rewrite 改写
func (c *Client) Rewrite(ctx context.Context, text string, fragments []ports.Fragment) (string, error) {
	req := struct {
		Text      string           `json:"text"`
		Fragments []ports.Fragment `json:"fragments"`
	}{
		Text:      text,
		Fragments: fragments,
	}

	var resp textResponse
	if err := c.postJSON(ctx, "/v1/rewrite", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Optimize SEO 优化
func (c *Client) Optimize(ctx context.Context, text string, params ports.SEOParams) (string, error) {
	req := struct {
		Text              string  `json:"text"`
		Keywords          string  `json:"keywords"`
		KeywordDensity    float64 `json:"keyword_density"`
		AddHeadings       bool    `json:"add_headings"`
		InternalLinkCount int     `json:"internal_link_count"`
	}{
		Text:              text,
		Keywords:          params.Keywords,
		KeywordDensity:    params.KeywordDensity,
		AddHeadings:       params.AddHeadings,
		InternalLinkCount: params.InternalLinkCount,
	}

	var resp textResponse
	if err := c.postJSON(ctx, "/v1/seo/optimize", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Humanize 拟人化
func (c *Client) Humanize(ctx context.Context, text string, settings ports.HumanizeSettings) (string, error) {
	req := struct {
		Text        string  `json:"text"`
		Level       string  `json:"level"`
		Variability float64 `json:"variability"`
	}{
		Text:        text,
		Level:       string(settings.Level),
		Variability: settings.Variability,
	}

	var resp textResponse
	if err := c.postJSON(ctx, "/v1/humanize", req, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Score 质量评分
func (c *Client) Score(ctx context.Context, text string, keywords string) (*ports.QualityMetrics, error) {
	req := struct {
		Text     string `json:"text"`
		Keywords string `json:"keywords"`
	}{
		Text:     text,
		Keywords: keywords,
	}

	var resp ports.QualityMetrics
	if err := c.postJSON(ctx, "/v1/quality/score", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// postJSON 发送 POST 请求并解析 JSON 响应
func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, respBody)
}

// getJSON 发送 GET 请求并解析 JSON 响应
func (c *Client) getJSON(ctx context.Context, path string, respBody interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, respBody)
}

// do 执行请求，非 2xx 状态带响应体摘要报错
func (c *Client) do(req *http.Request, respBody interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("text service %s %s: status=%d, body=%s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if respBody == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
