package domain

// MemberRow is one validated CSV data row.
type MemberRow struct {
	RowNumber   int    `json:"rowNumber"`
	MemberID    string `json:"memberId"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email,omitempty"`
}

// HasEmail reports whether the row carries a non-empty email cell.
func (r MemberRow) HasEmail() bool {
	return r.Email != ""
}

// ImportBatch is the set of rows handed to account creation. HasEmailColumn is
// a property of the file, not of any individual row.
type ImportBatch struct {
	Rows           []MemberRow `json:"rows"`
	HasEmailColumn bool        `json:"hasEmailColumn"`
}
