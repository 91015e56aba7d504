package domain

// SubjectType differentiates access tokens from activation tokens.
type SubjectType string

const (
	SubjectTypeAdmin      SubjectType = "ADMIN"
	SubjectTypeActivation SubjectType = "ACTIVATION"
)
