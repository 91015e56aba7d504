package errorutil

import (
	"fmt"
	"net/http"
)

// Import pipeline error codes. Codes are stable and safe to show to operators.
const (
	CodeInvalidFileFormat     = "INVALID_FILE_FORMAT"
	CodeFileUnreadable        = "FILE_UNREADABLE"
	CodeFileTooLarge          = "FILE_TOO_LARGE"
	CodeEmptyFile             = "EMPTY_FILE"
	CodeMissingColumns        = "MISSING_COLUMNS"
	CodeDuplicateInFile       = "DUPLICATE_MEMBER_ID_IN_FILE"
	CodeInvalidRowData        = "INVALID_ROW_DATA"
	CodeDuplicateMemberID     = "DUPLICATE_MEMBER_ID"
	CodeDuplicatePhone        = "DUPLICATE_PHONE"
	CodeDuplicateEmail        = "DUPLICATE_EMAIL"
	CodeAccountCreationFailed = "ACCOUNT_CREATION_FAILED"
	CodeSMSSendFailed         = "SMS_SEND_FAILED"
	CodeEmailSendFailed       = "EMAIL_SEND_FAILED"
	CodeMemberNotFound        = "MEMBER_NOT_FOUND"
	CodeNoPhoneOnFile         = "NO_PHONE_ON_FILE"
	CodeNoEmailOnFile         = "NO_EMAIL_ON_FILE"
	CodeMaxRetriesExceeded    = "MAX_RETRIES_EXCEEDED"
	CodeBackoffActive         = "BACKOFF_ACTIVE"
	CodeNotImportedMember     = "NOT_IMPORTED_MEMBER"
	CodeIneligibleStatus      = "INELIGIBLE_STATUS"
	CodeInvalidTransition     = "INVALID_STATUS_TRANSITION"
	CodeDatabaseError         = "DATABASE_ERROR"
	CodeOperationInterrupted  = "OPERATION_INTERRUPTED"
	CodeImportNotFound        = "IMPORT_NOT_FOUND"
	CodePreviewExpired        = "PREVIEW_EXPIRED"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeCredentialExpired     = "CREDENTIAL_EXPIRED"
	CodeAlreadyActivated      = "ALREADY_ACTIVATED"
	CodeInvalidChannel        = "INVALID_CHANNEL"
)

type catalogEntry struct {
	status int
	format string
	keys   []string
}

var catalog = map[string]catalogEntry{
	CodeInvalidFileFormat:     {http.StatusBadRequest, "Invalid file format %q: only .csv files are accepted", []string{"filename"}},
	CodeFileUnreadable:        {http.StatusBadRequest, "File could not be read as CSV: %s", []string{"reason"}},
	CodeFileTooLarge:          {http.StatusRequestEntityTooLarge, "File is %d bytes, which exceeds the %d byte limit", []string{"size", "limit"}},
	CodeEmptyFile:             {http.StatusBadRequest, "File %q contains no data rows", []string{"filename"}},
	CodeMissingColumns:        {http.StatusBadRequest, "Missing required columns: %s", []string{"missing"}},
	CodeDuplicateInFile:       {http.StatusBadRequest, "Duplicate member_id %q appears more than once in the file", []string{"member_id"}},
	CodeInvalidRowData:        {http.StatusBadRequest, "Row %d has invalid data: %s", []string{"row_number", "reason"}},
	CodeDuplicateMemberID:     {http.StatusConflict, "Duplicate member_id %q already exists", []string{"member_id"}},
	CodeDuplicatePhone:        {http.StatusConflict, "Phone number %q is already registered to another member", []string{"phone_number"}},
	CodeDuplicateEmail:        {http.StatusConflict, "Email %q is already registered to another member", []string{"email"}},
	CodeAccountCreationFailed: {http.StatusInternalServerError, "Failed to create account for member_id %q", []string{"member_id"}},
	CodeSMSSendFailed:         {http.StatusBadGateway, "SMS to member %q failed: %s", []string{"member_id", "reason"}},
	CodeEmailSendFailed:       {http.StatusBadGateway, "Email to member %q failed: %s", []string{"member_id", "reason"}},
	CodeMemberNotFound:        {http.StatusNotFound, "Member %q not found", []string{"member_id"}},
	CodeNoPhoneOnFile:         {http.StatusUnprocessableEntity, "Member %q has no phone number on file", []string{"member_id"}},
	CodeNoEmailOnFile:         {http.StatusUnprocessableEntity, "Member %q has no email address on file", []string{"member_id"}},
	CodeMaxRetriesExceeded:    {http.StatusTooManyRequests, "Maximum of %d %s retries reached for member %q", []string{"max_retries", "channel", "member_id"}},
	CodeBackoffActive:         {http.StatusTooManyRequests, "Retry for member %q is backing off, next attempt allowed in %d ms", []string{"member_id", "retry_after_ms"}},
	CodeNotImportedMember:     {http.StatusUnprocessableEntity, "Member %q was not created by a bulk import", []string{"member_id"}},
	CodeIneligibleStatus:      {http.StatusUnprocessableEntity, "Member %q has status %q and cannot receive a new invitation", []string{"member_id", "status"}},
	CodeInvalidTransition:     {http.StatusConflict, "Activation status cannot move from %q to %q", []string{"from", "to"}},
	CodeDatabaseError:         {http.StatusInternalServerError, "Database operation %q failed", []string{"operation"}},
	CodeOperationInterrupted:  {http.StatusServiceUnavailable, "Import %q was interrupted after %d of %d rows", []string{"import_id", "processed", "total"}},
	CodeImportNotFound:        {http.StatusNotFound, "Import operation %q not found", []string{"import_id"}},
	CodePreviewExpired:        {http.StatusGone, "Preview %q has expired or was already confirmed", []string{"preview_token"}},
	CodeInvalidCredentials:    {http.StatusUnauthorized, "Invalid credentials", nil},
	CodeCredentialExpired:     {http.StatusUnauthorized, "Temporary password for member %q has expired", []string{"member_id"}},
	CodeAlreadyActivated:      {http.StatusConflict, "Member %q is already activated", []string{"member_id"}},
	CodeInvalidChannel:        {http.StatusBadRequest, "Unknown notification channel %q", []string{"channel"}},
}

// Format builds a DomainError for a catalogued code. Arguments are positional and
// also exposed in Details under the entry's key names.
func Format(code string, args ...any) *DomainError {
	entry, ok := catalog[code]
	if !ok {
		return &DomainError{
			Code:       code,
			Message:    fmt.Sprint(args...),
			HTTPStatus: http.StatusInternalServerError,
		}
	}

	details := make(map[string]any, len(entry.keys))
	for i, key := range entry.keys {
		if i < len(args) {
			details[key] = args[i]
		}
	}

	message := entry.format
	if len(entry.keys) > 0 {
		message = fmt.Sprintf(entry.format, args...)
	}

	return &DomainError{
		Code:       code,
		Message:    message,
		HTTPStatus: entry.status,
		Details:    details,
	}
}

// Sentinel returns a comparable DomainError carrying only the code.
func Sentinel(code string) *DomainError {
	return &DomainError{Code: code}
}

// CodeOf returns the code of err when it is a DomainError.
func CodeOf(err error) string {
	if de := ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}
