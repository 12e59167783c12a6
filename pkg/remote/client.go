package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

// maxErrorBody はエラー応答から読み取る最大バイト数です。
const maxErrorBody = 64 << 10

// Doer は HTTP リクエストを送信します。*http.Client や go-http-kit のクライアントが満たします。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client は HTTP/JSON バインディング経由でバックエンドを呼び出す Service です。
type Client struct {
	baseURL string
	doer    Doer
	logger  *slog.Logger
}

var _ Service = (*Client)(nil)

// NewClient は baseURL のバックエンドに接続する Client を作成します。
func NewClient(baseURL string, doer Doer, logger *slog.Logger) (*Client, error) {
	if doer == nil {
		return nil, fmt.Errorf("HTTP クライアントは必須です")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("バックエンドの URL が不正です: %q", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		logger:  logger,
	}, nil
}

// ListModels は GET /v1/models?tier= を呼び出します。
func (c *Client) ListModels(ctx context.Context, t domain.Tier) ([]domain.ModelDescriptor, error) {
	endpoint := c.baseURL + PathModels + "?" + url.Values{"tier": {t.String()}}.Encode()
	var res modelsResponse
	if err := c.call(ctx, "list_models", http.MethodGet, endpoint, nil, &res); err != nil {
		return nil, err
	}
	return res.Models, nil
}

// Generate は POST /v1/generate を呼び出します。応答のセッション ID とラウンドが一致しなければ ErrStale です。
func (c *Client) Generate(ctx context.Context, call GenerateCall) ([]domain.Panel, error) {
	var res generateResponse
	if err := c.call(ctx, "generate", http.MethodPost, c.baseURL+PathGenerate, call, &res); err != nil {
		return nil, err
	}
	if res.SessionID != call.SessionID || res.Round != call.Round {
		StaleEchoesTotal.WithLabelValues("generate").Inc()
		return nil, domain.Stale("generate", fmt.Sprintf("応答は session=%s round=%d 宛てです", res.SessionID, res.Round)).In(call.SessionID, call.Round)
	}
	return res.Panels, nil
}

// RegeneratePanel は POST /v1/panels/{id}/regenerate を呼び出します。
func (c *Client) RegeneratePanel(ctx context.Context, call RegenerateCall) (RegenerateResult, error) {
	endpoint := c.baseURL + strings.Replace(PathRegenerate, "{id}", strconv.Itoa(call.PanelID), 1)
	var res regenerateResponse
	if err := c.call(ctx, "regenerate", http.MethodPost, endpoint, call, &res); err != nil {
		return RegenerateResult{}, err
	}
	if res.SessionID != call.SessionID || res.Round != call.Round || res.Attempt != call.Attempt || res.PanelID != call.PanelID {
		StaleEchoesTotal.WithLabelValues("regenerate").Inc()
		return RegenerateResult{}, domain.Stale("regenerate", fmt.Sprintf("応答は session=%s round=%d attempt=%d panel=%d 宛てです", res.SessionID, res.Round, res.Attempt, res.PanelID)).
			In(call.SessionID, call.Round).OnPanel(call.PanelID)
	}
	return res.RegenerateResult, nil
}

func (c *Client) call(ctx context.Context, op, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "バックエンドを呼び出します", "op", op, "method", method, "url", endpoint)

	resp, err := c.doer.Do(req)
	if err != nil {
		return domain.Remote(op, fmt.Errorf("%s %s: %w", method, endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Generation(op, fmt.Errorf("応答のデコードに失敗しました: %w", err))
	}
	return nil
}

// decodeError はエラー応答を TimeoutError か GenerationError に変換します。
func decodeError(op string, resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		se.Type = body.Type
		se.Message = body.Error
	} else {
		se.Message = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusGatewayTimeout || se.Type == ErrorTypeTimeout {
		return domain.Timeout(op, se)
	}
	return domain.Generation(op, se)
}
