/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
client-facing notices and HTTP responses.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Content-Type must be application/json.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Request body is not valid JSON.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request body must contain a single JSON object.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many connections. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Messaging Errors
	ErrUnknownRecipient: {Code: ErrUnknownRecipient, Message: "Message not delivered: unknown recipient %s"},
	ErrMessageTooLong:   {Code: ErrMessageTooLong, Message: "Message not delivered: longer than %d bytes"},

	// 3xxx: User, Session, and Security Errors
	ErrInvalidCredentials:  {Code: ErrInvalidCredentials, Message: "Incorrect login or password."},
	ErrAlreadyConnected:    {Code: ErrAlreadyConnected, Message: "Account is already connected as %s"},
	ErrNicknameTaken:       {Code: ErrNicknameTaken, Message: "Nickname %s is already taken"},
	ErrAuthTimeoutWarning:  {Code: ErrAuthTimeoutWarning, Message: "Authentication session will be closed in %s"},
	ErrServerShuttingDown:  {Code: ErrServerShuttingDown, Message: "Server is shutting down.", Status: http.StatusServiceUnavailable},
	ErrRegistrationRefused: {Code: ErrRegistrationRefused, Message: "Login or nickname is already in use.", Status: http.StatusConflict},

	// 5xxx: Internal System Errors
	ErrUnknown:            {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrBackendUnavailable: {Code: ErrBackendUnavailable, Message: "Identity service is unavailable.", Status: http.StatusServiceUnavailable},
}
