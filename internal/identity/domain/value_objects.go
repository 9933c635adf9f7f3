package domain

import (
	"regexp"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var (
	ErrInvalidEmail  = sharedDomain.NewError(sharedDomain.ErrInvalid, "invalid email address")
	ErrEmptyName     = sharedDomain.NewError(sharedDomain.ErrInvalid, "name cannot be empty")
	ErrNameTooLong   = sharedDomain.NewError(sharedDomain.ErrInvalid, "name exceeds maximum length")
	ErrInvalidGender = sharedDomain.NewError(sharedDomain.ErrInvalid, "gender must be male, female or other")
)

// MaxNameLength is the maximum allowed name length
const MaxNameLength = 100

// BirthDateLayout is the compact date format used in tokens.
const BirthDateLayout = "20060102"

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Email represents a validated, lower-cased email address.
type Email struct {
	value string
}

// NewEmail creates a validated email address.
func NewEmail(value string) (Email, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || !emailRegex.MatchString(value) {
		return Email{}, ErrInvalidEmail
	}
	return Email{value: value}, nil
}

// String returns the email string.
func (e Email) String() string {
	return e.value
}

// Equals checks if two emails are equal.
func (e Email) Equals(other Email) bool {
	return e.value == other.value
}

// Name represents a validated first or last name.
type Name struct {
	value string
}

// NewName creates a validated name.
func NewName(value string) (Name, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Name{}, ErrEmptyName
	}
	if len(value) > MaxNameLength {
		return Name{}, ErrNameTooLong
	}
	return Name{value: value}, nil
}

// String returns the name string.
func (n Name) String() string {
	return n.value
}

// Gender is the self-declared gender of a user. The zero value means unset.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender accepts an empty string as unset.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case "", GenderMale, GenderFemale, GenderOther:
		return g, nil
	default:
		return "", ErrInvalidGender
	}
}

// Profile holds the personal details of a user.
type Profile struct {
	FirstName Name
	LastName  Name
	Phone     string
	BirthDate *time.Time
	Gender    Gender
}
