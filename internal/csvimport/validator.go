package csvimport

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spec-kit/coop-member-import/internal/domain"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

const (
	ColumnMemberID    = "member_id"
	ColumnName        = "name"
	ColumnPhoneNumber = "phone_number"
	ColumnEmail       = "email"
)

// RequiredColumns must be present in every upload.
var RequiredColumns = []string{ColumnMemberID, ColumnName, ColumnPhoneNumber}

// OptionalColumns may be present.
var OptionalColumns = []string{ColumnEmail}

var (
	phonePattern = regexp.MustCompile(`^[0-9+\-\s()]{7,}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Record is one CSV data row keyed by normalized column name.
type Record map[string]string

// InvalidRow describes a rejected row.
type InvalidRow struct {
	RowNumber int      `json:"rowNumber"`
	MemberID  string   `json:"memberId"`
	Errors    []string `json:"errors"`
}

// Result is the outcome of validating every row of a file.
type Result struct {
	ValidRows       []domain.MemberRow `json:"validRows"`
	InvalidRows     []InvalidRow       `json:"invalidRows"`
	FileLevelErrors []string           `json:"fileLevelErrors"`
}

// HeaderCheck is the outcome of header validation.
type HeaderCheck struct {
	Missing        []string
	Unexpected     []string
	HasEmailColumn bool
}

// OK reports whether all required columns are present.
func (h HeaderCheck) OK() bool {
	return len(h.Missing) == 0
}

// Err returns a MISSING_COLUMNS error when required columns are absent.
func (h HeaderCheck) Err() error {
	if h.OK() {
		return nil
	}
	return apperrors.Format(apperrors.CodeMissingColumns, strings.Join(h.Missing, ", "))
}

// Warnings lists non-fatal header findings.
func (h HeaderCheck) Warnings() []string {
	if len(h.Unexpected) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("Ignoring unexpected columns: %s", strings.Join(h.Unexpected, ", "))}
}

// ValidateFile accepts only .csv file names, case-insensitively.
func ValidateFile(filename string) error {
	if !strings.EqualFold(filepath.Ext(strings.TrimSpace(filename)), ".csv") {
		return apperrors.Format(apperrors.CodeInvalidFileFormat, filename)
	}
	return nil
}

// ValidateSize rejects uploads above limit bytes. A non-positive limit disables the check.
func ValidateSize(size, limit int64) error {
	if limit > 0 && size > limit {
		return apperrors.Format(apperrors.CodeFileTooLarge, size, limit)
	}
	return nil
}

// ValidateHeaders reports missing required columns and tolerated extras.
func ValidateHeaders(headers []string) HeaderCheck {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[normalizeHeader(h)] = struct{}{}
	}

	var check HeaderCheck
	for _, col := range RequiredColumns {
		if _, ok := present[col]; !ok {
			check.Missing = append(check.Missing, col)
		}
	}
	_, check.HasEmailColumn = present[ColumnEmail]

	known := map[string]struct{}{ColumnMemberID: {}, ColumnName: {}, ColumnPhoneNumber: {}, ColumnEmail: {}}
	for _, h := range headers {
		name := normalizeHeader(h)
		if _, ok := known[name]; !ok && name != "" {
			check.Unexpected = append(check.Unexpected, name)
		}
	}
	return check
}

// ValidateRow checks a single row and returns every problem found.
func ValidateRow(row Record, rowNumber int, hasEmailColumn bool) []string {
	var errs []string

	for _, col := range RequiredColumns {
		if strings.TrimSpace(row[col]) == "" {
			errs = append(errs, fmt.Sprintf("Row %d: %s is required", rowNumber, col))
		}
	}

	phone := strings.TrimSpace(row[ColumnPhoneNumber])
	if phone != "" && !phonePattern.MatchString(phone) {
		errs = append(errs, fmt.Sprintf("Row %d: invalid phone_number %q", rowNumber, phone))
	}

	if hasEmailColumn {
		email := strings.TrimSpace(row[ColumnEmail])
		if email != "" && !emailPattern.MatchString(email) {
			errs = append(errs, fmt.Sprintf("Row %d: invalid email %q", rowNumber, email))
		}
	}

	return errs
}

// DetectDuplicateMemberIDs returns member ids that occur more than once, in
// first-seen order. Comparison is case-sensitive after trimming.
func DetectDuplicateMemberIDs(rows []Record) []string {
	counts := make(map[string]int, len(rows))
	order := make([]string, 0)
	for _, row := range rows {
		id := strings.TrimSpace(row[ColumnMemberID])
		if id == "" {
			continue
		}
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}

	var dups []string
	for _, id := range order {
		if counts[id] > 1 {
			dups = append(dups, id)
		}
	}
	return dups
}

// ValidateAllRows validates every data row. The header is row 1, so the first
// data row is row 2. Rows sharing a duplicated member_id are all rejected.
func ValidateAllRows(rows []Record, hasEmailColumn bool) Result {
	return validateRows(rows, nil, hasEmailColumn)
}

func validateRows(rows []Record, lines []int, hasEmailColumn bool) Result {
	result := Result{
		ValidRows:       []domain.MemberRow{},
		InvalidRows:     []InvalidRow{},
		FileLevelErrors: []string{},
	}

	dups := DetectDuplicateMemberIDs(rows)
	dupSet := make(map[string]struct{}, len(dups))
	for _, id := range dups {
		dupSet[id] = struct{}{}
		result.FileLevelErrors = append(result.FileLevelErrors,
			apperrors.Format(apperrors.CodeDuplicateInFile, id).Message)
	}

	for i, row := range rows {
		rowNumber := i + 2
		if i < len(lines) {
			rowNumber = lines[i]
		}
		memberID := strings.TrimSpace(row[ColumnMemberID])

		errs := ValidateRow(row, rowNumber, hasEmailColumn)
		if _, dup := dupSet[memberID]; dup {
			errs = append(errs, fmt.Sprintf("Row %d: duplicate member_id %q in file", rowNumber, memberID))
		}

		if len(errs) > 0 {
			result.InvalidRows = append(result.InvalidRows, InvalidRow{
				RowNumber: rowNumber,
				MemberID:  memberID,
				Errors:    errs,
			})
			continue
		}

		valid := domain.MemberRow{
			RowNumber:   rowNumber,
			MemberID:    memberID,
			Name:        strings.TrimSpace(row[ColumnName]),
			PhoneNumber: strings.TrimSpace(row[ColumnPhoneNumber]),
		}
		if hasEmailColumn {
			valid.Email = strings.TrimSpace(row[ColumnEmail])
		}
		result.ValidRows = append(result.ValidRows, valid)
	}

	sort.SliceStable(result.InvalidRows, func(a, b int) bool {
		return result.InvalidRows[a].RowNumber < result.InvalidRows[b].RowNumber
	})
	return result
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
