package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// エラー分類の番兵です。errors.Is で種別を判定します。
var (
	ErrValidation = errors.New("validation error")
	ErrBusy       = errors.New("busy")
	ErrConflict   = errors.New("conflict")
	ErrGeneration = errors.New("generation error")
	ErrTimeout    = errors.New("timeout")
	ErrStale      = errors.New("stale response")
)

// NoPanel はセッション単位のエラーでパネル ID が無いことを示します。
const NoPanel = -1

// Error は対象 (セッション / パネル / ラウンド) の文脈付きエラーです。
type Error struct {
	Kind      error
	Op        string
	SessionID string
	PanelID   int
	Round     uint64
	Msg       string
	Err       error
}

func newError(kind error, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, PanelID: NoPanel, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.SessionID != "" {
		fmt.Fprintf(&sb, " [session=%s round=%d", e.SessionID, e.Round)
		if e.PanelID != NoPanel {
			fmt.Fprintf(&sb, " panel=%d", e.PanelID)
		}
		sb.WriteString("]")
	} else if e.PanelID != NoPanel {
		fmt.Fprintf(&sb, " [panel=%d]", e.PanelID)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap は種別と原因の両方を返すため、errors.Is はどちらにも一致します。
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// In はセッション ID とラウンドを付与します。
func (e *Error) In(sessionID string, round uint64) *Error {
	e.SessionID = sessionID
	e.Round = round
	return e
}

// OnPanel はパネル ID を付与します。
func (e *Error) OnPanel(id int) *Error {
	e.PanelID = id
	return e
}

func Validation(op, msg string) *Error {
	return newError(ErrValidation, op, msg, nil)
}

func Validationf(op, format string, args ...any) *Error {
	return newError(ErrValidation, op, fmt.Sprintf(format, args...), nil)
}

func Busy(op, msg string) *Error {
	return newError(ErrBusy, op, msg, nil)
}

func Conflict(op, msg string) *Error {
	return newError(ErrConflict, op, msg, nil)
}

func Stale(op, msg string) *Error {
	return newError(ErrStale, op, msg, nil)
}

func Generation(op string, cause error) *Error {
	return newError(ErrGeneration, op, "", cause)
}

func Timeout(op string, cause error) *Error {
	return newError(ErrTimeout, op, "", cause)
}

// Remote はリモート呼び出しの失敗を GenerationError か TimeoutError に分類します。
// 既に分類済みのエラーは種別を保ったまま返します。
func Remote(op string, err error) *Error {
	var de *Error
	if errors.As(err, &de) && (de.Kind == ErrGeneration || de.Kind == ErrTimeout) {
		return de
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return Timeout(op, err)
	}
	return Generation(op, err)
}

// IsRemote はリモート起因 (生成失敗またはタイムアウト) のエラーかを判定します。
func IsRemote(err error) bool {
	return errors.Is(err, ErrGeneration) || errors.Is(err, ErrTimeout)
}
