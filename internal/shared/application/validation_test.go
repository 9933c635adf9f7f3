package application

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
)

type priceInput struct {
	Name   string          `json:"name" validate:"required,max=10"`
	Price  decimal.Decimal `json:"price" validate:"gt=0"`
	Email  string          `json:"email" validate:"omitempty,email"`
	Status string          `json:"status" validate:"oneof=active inactive"`
}

func TestValidate(t *testing.T) {
	t.Run("accepts valid input", func(t *testing.T) {
		err := Validate(priceInput{Name: "Coach", Price: decimal.RequireFromString("9.99"), Status: "active"})
		assert.NoError(t, err)
	})

	t.Run("reports fields by json name", func(t *testing.T) {
		err := Validate(priceInput{Price: decimal.Zero, Email: "nope", Status: "paused"})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalid)
		assert.Contains(t, err.Error(), "name is required")
		assert.Contains(t, err.Error(), "price must be greater than 0")
		assert.Contains(t, err.Error(), "email must be a valid email")
		assert.Contains(t, err.Error(), "status must be one of [active inactive]")
	})

	t.Run("negative decimal rejected", func(t *testing.T) {
		err := Validate(priceInput{Name: "x", Price: decimal.NewFromInt(-1), Status: "active"})
		assert.ErrorIs(t, err, domain.ErrInvalid)
	})

	t.Run("non struct is invalid", func(t *testing.T) {
		assert.ErrorIs(t, Validate("plain"), domain.ErrInvalid)
	})
}
