package domain

import "time"

// Admin is a cooperative administrator allowed to run imports.
type Admin struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor identifies who triggered an operation.
type Actor struct {
	ID   string
	Name string
}

// SystemActor is used for scheduled work with no human initiator.
var SystemActor = Actor{ID: "system", Name: "Scheduler"}
