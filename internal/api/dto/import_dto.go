package dto

// ConfirmImportRequest confirms a previously validated upload.
type ConfirmImportRequest struct {
	PreviewToken string `json:"preview_token"`
}
