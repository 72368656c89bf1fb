package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"projectmonitor/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{apperr.NotFound("project", 1), http.StatusNotFound},
		{apperr.Authorization("no"), http.StatusForbidden},
		{apperr.Conflict("busy"), http.StatusConflict},
		{apperr.Dependency(errors.New("down"), "blob store"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), "%v", tt.err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2025-03-01T10:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, 9, d.UTC().Hour())

	d, err = parseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseDate("01/03/2025")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
