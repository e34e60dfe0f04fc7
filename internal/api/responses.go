package api

// Error codes returned in the structured error body. Webhook responses never
// carry these; providers only see an HTTP status.
const (
	CodeValidation          = "validation_error"
	CodeNotFound            = "not_found"
	CodeInsufficientBalance = "insufficient_balance"
	CodePayment             = "payment_error"
	CodeConflict            = "conflict"
	CodeInternal            = "internal_error"
)

type ErrorResponse struct {
	Code    string `json:"code" example:"validation_error"`
	Message string `json:"message" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

func Error(code, message string) ErrorResponse {
	return ErrorResponse{Code: code, Message: message}
}
