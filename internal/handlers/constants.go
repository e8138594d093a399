package handlers

const (
	ErrInvalidRequestBody  = "Invalid request body"
	ErrInvalidID           = "Invalid id"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrNotFound            = "Not found"
	ErrInternalServerError = "Internal server error"

	maxJSONBodyBytes = 1 << 20
	// multipartOverhead is allowed on top of the file size limit for part headers and form fields
	multipartOverhead = 1 << 20
	maxFormFieldBytes = 1024
)
