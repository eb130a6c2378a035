/*
Package errs provides custom error types and application-level error code constants.

These error codes identify the specific protocol, identity and system errors
that are reported to chat clients as informational text frames and to the HTTP
side-channel as JSON responses.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that command or request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request body is not JSON.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body could not be decoded.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing data after the JSON document.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the connection rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Messaging Errors
const (
	// ErrUnknownRecipient indicates that a private message targeted a nickname nobody is using.
	ErrUnknownRecipient = 2301

	// ErrMessageTooLong indicates that a message would not fit in one outbound frame.
	ErrMessageTooLong = 2302
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrInvalidCredentials indicates that no account matches the supplied login and password.
	ErrInvalidCredentials = 3101

	// ErrAlreadyConnected indicates that the account is already used by a live session.
	ErrAlreadyConnected = 3102

	// ErrNicknameTaken indicates that the requested nickname belongs to another account.
	ErrNicknameTaken = 3103

	// ErrAuthTimeoutWarning is the notice telling an unauthenticated peer how long it has left.
	ErrAuthTimeoutWarning = 3104

	// ErrServerShuttingDown indicates that the server no longer accepts new sessions.
	ErrServerShuttingDown = 3105

	// ErrRegistrationRefused indicates that the login or nickname of a new account is already in use.
	ErrRegistrationRefused = 3106
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrBackendUnavailable indicates that the identity backend failed its health check.
	ErrBackendUnavailable = 5001
)
