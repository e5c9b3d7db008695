package jsonapi

import (
	"net/http"
	"strconv"
)

// NewError creates an Error with the given status, code and title.
func NewError(status int, code, title string) Error {
	return Error{
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  title,
	}
}

// WithDetail returns a copy of e with a detail message.
func (e Error) WithDetail(detail string) Error {
	e.Detail = detail
	return e
}

// WithPointer returns a copy of e pointing at the offending body field.
func (e Error) WithPointer(pointer string) Error {
	e.Source = &ErrorSource{Pointer: pointer}
	return e
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(detail string) Error {
	return NewError(http.StatusBadRequest, "bad_request", "Bad Request").WithDetail(detail)
}

// ErrNotFoundWithID creates a 404 error naming the missing resource.
func ErrNotFoundWithID(resourceType, id string) Error {
	e := NewError(http.StatusNotFound, "not_found", "Not Found").
		WithDetail(resourceType + " '" + id + "' not found")
	e.Source = &ErrorSource{Parameter: "id"}
	return e
}

// ErrValidation creates a 422 error for an invalid body field.
func ErrValidation(pointer, message string) Error {
	return NewError(http.StatusUnprocessableEntity, "validation_error", "Validation Error").
		WithDetail(message).
		WithPointer(pointer)
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An unexpected error occurred"
	}
	return NewError(http.StatusInternalServerError, "internal_error", "Internal Server Error").WithDetail(detail)
}

// ErrServiceUnavailable creates a 503 error.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(http.StatusServiceUnavailable, "service_unavailable", "Service Unavailable").WithDetail(detail)
}
