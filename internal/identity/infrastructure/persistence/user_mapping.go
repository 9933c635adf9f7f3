package persistence

import (
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
)

const birthDateLayout = "2006-01-02"

// userRow is the column set shared by both dialects.
type userRow struct {
	id           uuid.UUID
	email        string
	firstName    string
	lastName     string
	phone        string
	birthDate    *time.Time
	gender       string
	passwordHash string
	deleted      bool
	createdAt    time.Time
	updatedAt    time.Time
}

func (r userRow) toDomain() (*domain.User, error) {
	email, err := domain.NewEmail(r.email)
	if err != nil {
		return nil, err
	}
	first, err := domain.NewName(r.firstName)
	if err != nil {
		return nil, err
	}
	last, err := domain.NewName(r.lastName)
	if err != nil {
		return nil, err
	}
	gender, err := domain.ParseGender(r.gender)
	if err != nil {
		return nil, err
	}

	profile := domain.Profile{
		FirstName: first,
		LastName:  last,
		Phone:     r.phone,
		BirthDate: r.birthDate,
		Gender:    gender,
	}
	return domain.RehydrateUser(r.id, email, profile, r.passwordHash, r.deleted, r.createdAt, r.updatedAt), nil
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
