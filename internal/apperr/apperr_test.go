package apperr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"daily-album-backend/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, apperr.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get upload: %w", pgx.ErrNoRows), apperr.ErrNotFound},
		{"deadline", context.DeadlineExceeded, apperr.ErrConnectivity},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, apperr.ErrPermissionDenied},
		{"unique violation", &pgconn.PgError{Code: "23505"}, apperr.ErrValidation},
		{"wrapped unique violation", fmt.Errorf("create user: %w", &pgconn.PgError{Code: "23505"}), apperr.ErrValidation},
		{"internal assertion", &pgconn.PgError{Code: "XX000"}, apperr.ErrTransient},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, apperr.ErrTransient},
		{"connection failure", &pgconn.PgError{Code: "08006"}, apperr.ErrConnectivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apperr.Classify(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestClassify_UnknownErrorPassesThrough(t *testing.T) {
	cause := errors.New("something else")
	assert.Equal(t, cause, apperr.Classify(cause))
}

func TestRetryable(t *testing.T) {
	assert.True(t, apperr.Retryable(&pgconn.PgError{Code: "XX001"}))
	assert.False(t, apperr.Retryable(&pgconn.PgError{Code: "42501"}))
	assert.False(t, apperr.Retryable(errors.New("plain")))
}
