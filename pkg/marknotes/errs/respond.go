package errs

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// Respond writes err as a JSON error body and aborts the request.
// Messages of 5xx kinds are replaced with a generic text.
func Respond(c *gin.Context, err error) {
	if err == nil {
		err = &Error{Kind: KindInternal, Op: "respond"}
	}
	kind := KindOf(err)
	status := Status(kind)

	message := "Internal server error"
	if status < 500 {
		message = publicMessage(err, kind)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": kind.String()})
}

func publicMessage(err error, kind Kind) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch kind {
	case KindNotFound:
		return "Not found"
	case KindUnauthorized:
		return "Authentication required"
	case KindForbidden:
		return "Access denied"
	case KindConflict:
		return "Already exists"
	case KindPathEscape:
		return "Invalid path"
	default:
		return "Invalid request"
	}
}
