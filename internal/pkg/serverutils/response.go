package serverutils

// HttpError carries a status code through the service layer up to the error
// handler middleware.
type HttpError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
}

func (e *HttpError) Error() string {
	return e.Message
}

func NewHttpError(code int, message string) *HttpError {
	return &HttpError{Code: code, Message: message}
}
