package postgres

import (
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestJSONColumn(t *testing.T) {
	assert.Nil(t, jsonColumn(map[string]string{}))
	assert.JSONEq(t, `{"roles":"admin"}`, string(jsonColumn(map[string]string{"roles": "admin"})))
	assert.JSONEq(t, `{"attempts":3}`, string(jsonColumn(map[string]any{"attempts": 3})))
}

func TestNullTime(t *testing.T) {
	assert.Nil(t, nullTime(time.Time{}))
	now := time.Now()
	assert.Equal(t, now, nullTime(now))
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: uniqueViolation})
	assert.True(t, isUniqueViolation(wrapped))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(assert.AnError))
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, defaultPageSize, pageSize(0))
	assert.Equal(t, 10, pageSize(10))
	assert.Equal(t, maxPageSize, pageSize(10_000))
}
