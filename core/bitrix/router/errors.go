package router

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeHandlerFailed = "HANDLER_FAILED"
	ErrCodeHandlerPanic  = "HANDLER_PANIC"
)

var (
	// ErrHandlerFailed wraps an error returned by a handler.
	ErrHandlerFailed = apperrors.New("handler failed", apperrors.CategoryHandler).
				WithTextCode(ErrCodeHandlerFailed)
	// ErrHandlerPanic reports a panic recovered while routing an update.
	ErrHandlerPanic = apperrors.New("handler panicked", apperrors.CategoryHandler).
			WithTextCode(ErrCodeHandlerPanic)
)

func handlerError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
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

func wrapHandlerError(handler string, err error) error {
	if err == nil {
		return nil
	}
	return handlerError(ErrHandlerFailed, fmt.Sprintf("handler %s failed: %v", handler, err), err, map[string]any{
		"handler": handler,
	})
}

func panicError(handler string, recovered any) error {
	var source error
	if e, ok := recovered.(error); ok {
		source = e
	} else {
		source = fmt.Errorf("%v", recovered)
	}
	return handlerError(ErrHandlerPanic, fmt.Sprintf("handler %s panicked: %v", handler, recovered), source, map[string]any{
		"handler": handler,
	})
}

// ErrorCode returns the text code of the outermost typed error in err.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}
