package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/shared"
)

func TestClassifyLockContention(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := fmt.Errorf("lock product: %w", &pgconn.PgError{Code: code, Message: "boom"})
		require.ErrorIs(t, Classify(err), shared.ErrConflict, code)
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("plain")
	assert.Same(t, plain, Classify(plain))
	assert.NoError(t, Classify(nil))

	unique := &pgconn.PgError{Code: "23505"}
	assert.NotErrorIs(t, Classify(unique), shared.ErrConflict)
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique)))
}

func TestDecimalFromNumeric(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("1234.50"))
	assert.True(t, decimal.RequireFromString("1234.5").Equal(Decimal(n)))

	assert.True(t, Decimal(pgtype.Numeric{}).IsZero())
	assert.Nil(t, NullableDecimal(pgtype.Numeric{}))
	require.NotNil(t, NullableDecimal(n))
}
