package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Profile is a stored company fact sheet. Data holds the full profile
// record as JSON; Name is denormalized for listings.
type Profile struct {
	ID        string
	Name      string
	Data      string // profile JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UseCase is a stored use-case record. Data holds the full record as
// JSON; Title is denormalized for listings.
type UseCase struct {
	ID        string
	Title     string
	Data      string // use case JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Analysis is one persisted analysis run. ResultJSON holds the complete
// analysis record; the remaining columns are denormalized so listing,
// search and statistics work without unmarshaling every row.
type Analysis struct {
	ID           string
	CreatedAt    time.Time
	Template     string
	ProfileID    string
	UseCaseID    string
	CompanyName  string
	UseCaseTitle string
	Status       string // "completed", "failed"
	Confidence   float64
	Strategy     string
	Summary      string
	ResultJSON   string
	RawResponse  string
	UsageJSON    string
}
