package publisher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/autopost-agent/internal/x"
)

// FailureReason classifies a publish failure into an actionable category
type FailureReason string

const (
	// ReasonWritePermission means the token lacks write scope and must be
	// regenerated with Read and Write permissions
	ReasonWritePermission FailureReason = "write_permission"
	// ReasonDuplicate means the network rejected repeated content or the
	// account is restricted
	ReasonDuplicate FailureReason = "duplicate_or_restricted"
	// ReasonUsageCap means a plan limit or disallowed operation
	ReasonUsageCap FailureReason = "usage_cap"
	// ReasonGeneric passes the backend's error detail through
	ReasonGeneric FailureReason = "generic"
)

// PublishError is a classified publish failure. Message is user-facing and
// actionable; Err retains the backend error.
type PublishError struct {
	Reason  FailureReason
	Message string
	Err     error
}

func (e *PublishError) Error() string {
	return e.Message
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Classify translates a backend error into a PublishError. The rules mirror
// the 403 variants the X API returns for blocked writes.
func Classify(err error) *PublishError {
	var apiErr *x.APIError
	if !errors.As(err, &apiErr) {
		return &PublishError{Reason: ReasonGeneric, Message: err.Error(), Err: err}
	}

	if apiErr.StatusCode == 403 {
		switch {
		case strings.Contains(apiErr.Detail, "You are not allowed to create this Tweet"):
			return &PublishError{
				Reason:  ReasonDuplicate,
				Message: "投稿が拒否されました。同じ内容を連続で投稿しているか、アカウントが制限されている可能性があります。",
				Err:     err,
			}
		case strings.Contains(apiErr.Detail, "Authenticating user is not allowed"):
			return &PublishError{
				Reason:  ReasonWritePermission,
				Message: "書き込み権限がありません。Developer Portalで「Read and Write」に設定し、アクセストークンを再生成して設定し直してください。",
				Err:     err,
			}
		case apiErr.Title == "UsageCapExceeded" || strings.Contains(apiErr.Detail, "UsageCapExceeded"):
			return &PublishError{
				Reason:  ReasonUsageCap,
				Message: "APIの利用制限(Free Tier)に達したか、許可されていない操作を行いました。",
				Err:     err,
			}
		case apiErr.Detail != "":
			return &PublishError{
				Reason:  ReasonGeneric,
				Message: fmt.Sprintf("X API Error (403): %s", apiErr.Detail),
				Err:     err,
			}
		default:
			return &PublishError{
				Reason:  ReasonWritePermission,
				Message: "X API 403 Forbidden: 権限がありません。Developer Portalで「Read and Write」権限になっているか確認し、アクセストークンを再生成して設定し直してください。",
				Err:     err,
			}
		}
	}

	return &PublishError{Reason: ReasonGeneric, Message: apiErr.Error(), Err: err}
}
