package crawler

import (
	"errors"
	"fmt"
)

var (
	ErrNegotiation      = errors.New("session negotiation failed")
	ErrCaptchaExhausted = errors.New("captcha attempts exhausted")
	ErrTransport        = errors.New("portal transport failure")
	ErrCaptchaRejected  = errors.New("captcha answer rejected")
	ErrServerLogic      = errors.New("portal reported an error")
)

// NegotiationError reports a handshake response that lacked a required marker.
type NegotiationError struct {
	Step   string
	Marker string
	Err    error
}

func (e *NegotiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("negotiation step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("negotiation step %s: marker %q not found", e.Step, e.Marker)
}

func (e *NegotiationError) Unwrap() error        { return e.Err }
func (e *NegotiationError) Is(target error) bool { return target == ErrNegotiation }

// CaptchaExhaustedError carries the last captcha image so a caller can solve
// it by other means.
type CaptchaExhaustedError struct {
	Attempts int
	Image    []byte
}

func (e *CaptchaExhaustedError) Error() string {
	return fmt.Sprintf("captcha not recognized after %d attempts", e.Attempts)
}

func (e *CaptchaExhaustedError) Is(target error) bool { return target == ErrCaptchaExhausted }

// TransportError wraps a network, timeout or HTTP status failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string        { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// CaptchaRejectedError is the portal saying the submitted answer was wrong.
type CaptchaRejectedError struct {
	Message string
}

func (e *CaptchaRejectedError) Error() string        { return "captcha rejected: " + e.Message }
func (e *CaptchaRejectedError) Is(target error) bool { return target == ErrCaptchaRejected }

// ServerLogicError is an explicit error title in a query response.
type ServerLogicError struct {
	Message string
}

func (e *ServerLogicError) Error() string        { return "portal error: " + e.Message }
func (e *ServerLogicError) Is(target error) bool { return target == ErrServerLogic }

// ErrorType classifies err for metric labels.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCaptchaRejected):
		return "captcha_rejected"
	case errors.Is(err, ErrCaptchaExhausted):
		return "captcha_exhausted"
	case errors.Is(err, ErrServerLogic):
		return "server_logic"
	case errors.Is(err, ErrNegotiation):
		return "negotiation"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
