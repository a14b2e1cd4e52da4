package caption

import "fmt"

// エラーコード
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeInvalidName   = "INVALID_NAME"
	CodeNotFound      = "NOT_FOUND"
	CodeLimitExceeded = "LIMIT_EXCEEDED"
	CodeQueueDisabled = "QUEUE_DISABLED"
	CodeInternal      = "INTERNAL_ERROR"
)

// Error はクライアントへ返すエラーコードとメッセージを保持します。
// Message が空の場合はコードに対応するローカライズ済みメッセージを使います。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
