package domain

import "time"

// ImportStatus enumerates lifecycle states of an import operation.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusCompleted ImportStatus = "completed"
)

// ImportCounter names an atomically incremented counter on an import operation.
type ImportCounter string

const (
	CounterSuccessfulImports ImportCounter = "successful_imports"
	CounterFailedImports     ImportCounter = "failed_imports"
	CounterSkippedRows       ImportCounter = "skipped_rows"
	CounterSMSSent           ImportCounter = "sms_sent_count"
	CounterSMSFailed         ImportCounter = "sms_failed_count"
	CounterEmailSent         ImportCounter = "email_sent_count"
	CounterEmailFailed       ImportCounter = "email_failed_count"
)

// SentCounter returns the counter tracking successful sends on a channel.
func SentCounter(channel Channel) ImportCounter {
	if channel == ChannelEmail {
		return CounterEmailSent
	}
	return CounterSMSSent
}

// FailedCounter returns the counter tracking failed sends on a channel.
func FailedCounter(channel Channel) ImportCounter {
	if channel == ChannelEmail {
		return CounterEmailFailed
	}
	return CounterSMSFailed
}

// ImportError is a structured entry on an import operation's error list.
type ImportError struct {
	RowNumber    int    `json:"rowNumber"`
	MemberID     string `json:"memberId"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// ImportOperation aggregates the outcome of one CSV confirm or retry-of-import action.
type ImportOperation struct {
	ID                string        `json:"id"`
	AdminID           string        `json:"adminId"`
	AdminName         string        `json:"adminName"`
	CSVFileName       string        `json:"csvFileName"`
	TotalRows         int           `json:"totalRows"`
	SuccessfulImports int           `json:"successfulImports"`
	FailedImports     int           `json:"failedImports"`
	SkippedRows       int           `json:"skippedRows"`
	SMSSentCount      int           `json:"smsSentCount"`
	SMSFailedCount    int           `json:"smsFailedCount"`
	EmailSentCount    int           `json:"emailSentCount"`
	EmailFailedCount  int           `json:"emailFailedCount"`
	ImportErrors      []ImportError `json:"importErrors"`
	Status            ImportStatus  `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
}

// ImportStatistics are the aggregate counts reported back to callers.
type ImportStatistics struct {
	TotalRows         int `json:"totalRows"`
	SuccessfulImports int `json:"successfulImports"`
	FailedImports     int `json:"failedImports"`
	SkippedRows       int `json:"skippedRows"`
	SMSSentCount      int `json:"smsSentCount"`
	SMSFailedCount    int `json:"smsFailedCount"`
}

// Reconciles reports whether every row landed in exactly one outcome bucket.
func (s ImportStatistics) Reconciles() bool {
	return s.SuccessfulImports+s.FailedImports+s.SkippedRows == s.TotalRows
}
