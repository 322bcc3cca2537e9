package response

// Response envelope and codes shared by every HTTP API.
type APIResponseCode int

const (
	APIResponseCodeOK                APIResponseCode = 0
	APIResponseCodeBadRequest        APIResponseCode = 40000
	APIResponseCodeInvalidPurchase   APIResponseCode = 40001
	APIResponseCodeNotFound          APIResponseCode = 40400
	APIResponseCodeNotReady          APIResponseCode = 40901
	APIResponseCodeAlreadyProcessing APIResponseCode = 40902
	APIResponseCodeCancelled         APIResponseCode = 40903
	APIResponseCodeError             APIResponseCode = 50000
	APIResponseCodeMisconfigured     APIResponseCode = 50001
	APIResponseCodeProviderError     APIResponseCode = 50201
	APIResponseCodeTimeout           APIResponseCode = 50401
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:                "ok",
	APIResponseCodeBadRequest:        "bad request",
	APIResponseCodeInvalidPurchase:   "invalid purchase request",
	APIResponseCodeNotFound:          "not found",
	APIResponseCodeNotReady:          "payments not ready",
	APIResponseCodeAlreadyProcessing: "payment already in progress",
	APIResponseCodeCancelled:         "payment cancelled",
	APIResponseCodeError:             "unexpected error",
	APIResponseCodeMisconfigured:     "payment provider misconfigured",
	APIResponseCodeProviderError:     "payment provider failed",
	APIResponseCodeTimeout:           "payment timed out",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// ErrorMsgT is ErrorT with a caller supplied message.
func ErrorMsgT[T any](code APIResponseCode, msg string, data T) *APIResponse[T] {
	if msg == "" {
		msg = codeToMsg[code]
	}
	return &APIResponse[T]{Code: code, Message: msg, Data: data}
}
