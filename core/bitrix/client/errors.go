package client

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeTransport      = "BITRIX_TRANSPORT"
	ErrCodeBadResponse    = "BITRIX_BAD_RESPONSE"
	ErrCodeAPI            = "BITRIX_API_ERROR"
	ErrCodeInvalidRequest = "BITRIX_INVALID_REQUEST"
)

var (
	// ErrTransport reports a failure to reach the REST endpoint.
	ErrTransport = apperrors.New("bitrix transport failure", apperrors.CategoryExternal).
			WithTextCode(ErrCodeTransport)
	// ErrBadResponse reports a reply that is not valid JSON.
	ErrBadResponse = apperrors.New("bitrix returned a malformed response", apperrors.CategoryExternal).
			WithTextCode(ErrCodeBadResponse)
	// ErrAPI reports an {"error": ...} reply.
	ErrAPI = apperrors.New("bitrix api error", apperrors.CategoryExternal).
		WithTextCode(ErrCodeAPI)
	// ErrInvalidRequest reports a call that cannot be built from its arguments.
	ErrInvalidRequest = apperrors.New("invalid bitrix request", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidRequest)
)

func clientError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of a client error, empty for other errors.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// APIErrorCode returns the portal error code such as "ACCESS_DENIED" carried
// by a BITRIX_API_ERROR, empty otherwise.
func APIErrorCode(err error) string {
	var ge *apperrors.Error
	if !stderrors.As(err, &ge) || ge.TextCode != ErrCodeAPI {
		return ""
	}
	code, _ := ge.Metadata["error"].(string)
	return code
}
