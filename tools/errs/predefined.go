package errs

// REST-facing error codes. 1xxx are request faults, 15xx credential faults,
// 5xxx server faults.
var (
	ErrArgs           = NewCodeError(1001, "invalid argument")
	ErrRecordNotFound = NewCodeError(1002, "record not found")
	ErrDuplicateKey   = NewCodeError(1003, "record already exists")

	ErrTokenMissing  = NewCodeError(1501, "authentication required")
	ErrTokenInvalid  = NewCodeError(1502, "invalid or expired token")
	ErrPasswordWrong = NewCodeError(1503, "wrong account or password")

	ErrInternal = NewCodeError(5000, "internal server error")
)
