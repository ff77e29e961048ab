package dto

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrorResponse error 400 con la lista completa de violaciones.
type ValidationErrorResponse struct {
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	Violations []FieldViolation `json:"violations"`
}

// FieldViolation campo y motivo de una violación.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}
