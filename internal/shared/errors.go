package shared

import (
	"errors"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = httpx.ErrNotFound
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrLockHeld is returned when another process owns a named lock.
	ErrLockHeld = errors.New("lock already held")
)

// UserSafeMessage returns a message that can be shown to end users without
// leaking internals.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, httpx.ErrValidation), errors.Is(err, httpx.ErrDuplicate):
		return err.Error()
	case errors.Is(err, httpx.ErrNotFound):
		return "요청한 항목을 찾을 수 없습니다."
	case errors.Is(err, httpx.ErrForbidden):
		return "권한이 없습니다."
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, httpx.ErrUnauthorized):
		return "아이디 또는 비밀번호가 올바르지 않습니다."
	default:
		return "처리 중 오류가 발생했습니다."
	}
}
