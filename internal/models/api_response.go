package models

// APIStatus is the status field of every JSON response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
	// APIStatusLimited marks a request answered by the quota or budget gate.
	APIStatusLimited  APIStatus = "limited"
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse is the envelope shared by all endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

func newResponse(status APIStatus, message string, result interface{}) APIResponse {
	return APIResponse{Status: string(status), Message: message, Result: result}
}

// Success wraps result in an ok response.
func Success(result interface{}) APIResponse {
	return newResponse(APIStatusOK, "", result)
}

// SuccessWithMessage is Success with an explanatory message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return newResponse(APIStatusOK, message, result)
}

// Error reports a failed request.
func Error(message string) APIResponse {
	return newResponse(APIStatusError, message, nil)
}

// Limited reports a gate short-circuit with its partial result.
func Limited(message string, result interface{}) APIResponse {
	return newResponse(APIStatusLimited, message, result)
}

// RecordedWithMessage reports newly persisted data.
func RecordedWithMessage(message string, result interface{}) APIResponse {
	return newResponse(APIStatusRecorded, message, result)
}
