package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrTokenExpired, "token superseded")

	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrTokenNotFound))
	assert.Equal(t, "token superseded", err.Message)
	assert.Equal(t, "token has expired", ErrTokenExpired.Message)
}

func TestWrappedCloneStillMatches(t *testing.T) {
	err := fmt.Errorf("claim: %w", Clone(ErrTokenAlreadyConsumed, ""))

	assert.True(t, errors.Is(err, ErrTokenAlreadyConsumed))
	assert.Equal(t, http.StatusConflict, FromError(err).Status)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, errors.Is(appErr, sql.ErrConnDone))
}

func TestWithDetailsAndStatus(t *testing.T) {
	err := WithDetails(ErrInvalidTransition, map[string]interface{}{"from": "DRAFT"})
	assert.Equal(t, "DRAFT", err.Details["from"])
	assert.Nil(t, ErrInvalidTransition.Details)

	bad := WithStatus(ErrTokenAlreadyConsumed, http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.True(t, errors.Is(bad, ErrTokenAlreadyConsumed))
}
