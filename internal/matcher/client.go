package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/platform/config"
)

// Client 是外部曲目识别/混音服务的HTTP客户端。
// 每个请求都即时附带调用方的Bearer令牌，二进制请求只携带
// multipart writer生成的Content-Type，保证边界参数正确。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.MatcherConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Match 是识别结果的一个候选项，顺序由服务端按置信度降序给出，
// 客户端不重新排序。
type Match struct {
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	Album         string  `json:"album"`
	Confidence    float64 `json:"confidence"`
	SpotifyURL    string  `json:"spotify_url,omitempty"`
	YoutubeURL    string  `json:"youtube_url,omitempty"`
	AppleMusicURL string  `json:"apple_music_url,omitempty"`
}

// ToMatchedSong 把候选项转换为哼唱文档里的识别记录
func (m Match) ToMatchedSong() *hum.MatchedSong {
	return &hum.MatchedSong{
		Title:         m.Title,
		Artist:        m.Artist,
		Album:         m.Album,
		Confidence:    m.Confidence,
		SpotifyURL:    m.SpotifyURL,
		YoutubeURL:    m.YoutubeURL,
		AppleMusicURL: m.AppleMusicURL,
	}
}

// normalizeConfidence 把服务端的置信度统一为[0,1]的小数。
// 两条代码路径对单位的约定不一致，边界在这里收口：大于1按百分比处理。
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// newMultipartRequest 构造一个带音频文件和附加字段的multipart POST请求。
// Content-Type只能由multipart writer设置，否则边界参数会丢失。
func (c *Client) newMultipartRequest(ctx context.Context, path, bearer, filename string, audio []byte, fields map[string]string) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, fmt.Errorf("无法构造音频字段: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("无法写入音频数据: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("无法写入字段 %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("无法完成multipart编码: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}

// do 发送请求并把非2xx响应归一化为错误。
// 服务端的错误信封是 { "detail": string }；缺少detail时使用兜底文案。
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &BackendError{Detail: genericDetail}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Detail string `json:"detail"`
		}
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Detail != "" {
			return &BackendError{Status: resp.StatusCode, Detail: envelope.Detail}
		}
		return &BackendError{Status: resp.StatusCode, Detail: genericDetail}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &BackendError{Status: resp.StatusCode, Detail: genericDetail}
	}
	return nil
}

// UploadAndMatch 把音频和标题提交给识别服务，返回按置信度降序的候选列表。
// 置信度在返回前归一化为[0,1]。
func (c *Client) UploadAndMatch(ctx context.Context, bearer, filename string, audio []byte, title string) ([]Match, error) {
	req, err := c.newMultipartRequest(ctx, "/hums/upload-and-match", bearer, filename, audio,
		map[string]string{"title": title})
	if err != nil {
		return nil, err
	}

	var result struct {
		Matches []Match `json:"matches"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	for i := range result.Matches {
		result.Matches[i].Confidence = normalizeConfidence(result.Matches[i].Confidence)
	}
	return result.Matches, nil
}

// Remix 把音频和扁平化的混音参数提交给混音服务，返回处理后音频的URL。
func (c *Client) Remix(ctx context.Context, bearer, filename string, audio []byte, params hum.RemixParams) (string, error) {
	fields := map[string]string{
		"pitch":   strconv.Itoa(params.Pitch),
		"speed":   strconv.FormatFloat(params.Speed, 'g', -1, 64),
		"reverse": strconv.FormatBool(params.Reverse),
		"echo":    strconv.Itoa(params.Echo),
		"reverb":  strconv.Itoa(params.Reverb),
	}
	req, err := c.newMultipartRequest(ctx, "/hums/remix", bearer, filename, audio, fields)
	if err != nil {
		return "", err
	}

	var result struct {
		RemixedURL string `json:"remixed_url"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.RemixedURL, nil
}

// SyncProfile 请求识别服务索引/增强当前用户的资料。
// 这是尽力而为的调用：失败由调用方降级为能力标记，不作为阻塞错误上抛。
func (c *Client) SyncProfile(ctx context.Context, bearer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/sync-profile", nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req, nil)
}

// EnhancedFeed 从识别服务读取增强Feed。
// 这是Feed回退链的第一层；失败由feed模块记录并回落到文档库。
func (c *Client) EnhancedFeed(ctx context.Context, bearer string) ([]hum.FeedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/hums/feed", nil)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	var result struct {
		Hums []hum.FeedEntry `json:"hums"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Hums, nil
}

// Ping 探测识别服务的健康端点，供健康检查器使用。
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
