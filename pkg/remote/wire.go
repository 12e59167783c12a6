package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shouni/go-manga-studio/pkg/domain"
)

// HTTP バインディングのパスです。
const (
	PathModels     = "/v1/models"
	PathGenerate   = "/v1/generate"
	PathRegenerate = "/v1/panels/{id}/regenerate"
	PathAssets     = "/v1/assets/{id}"
	PathMetrics    = "/metrics"
)

// エラー本文の type の値です。
const (
	ErrorTypeValidation = "validation"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeGeneration = "generation"
)

type modelsResponse struct {
	Tier   domain.Tier              `json:"tier"`
	Models []domain.ModelDescriptor `json:"models"`
}

type generateResponse struct {
	SessionID string         `json:"session_id"`
	Round     uint64         `json:"round"`
	Panels    []domain.Panel `json:"panels"`
}

type regenerateResponse struct {
	SessionID string `json:"session_id"`
	Round     uint64 `json:"round"`
	Attempt   uint64 `json:"attempt"`
	RegenerateResult
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// StatusError はバックエンドが返したエラー応答です。
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("バックエンドがエラーを返しました (status=%d, type=%s): %s", e.StatusCode, e.Type, e.Message)
}

// errorType はエラーをエラー本文の type とステータスコードに変換します。
func errorType(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return ErrorTypeValidation, http.StatusBadRequest
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout, http.StatusGatewayTimeout
	default:
		return ErrorTypeGeneration, http.StatusBadGateway
	}
}
