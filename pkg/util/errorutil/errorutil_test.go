package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/authgate/internal/repository"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	de := ToDomainError(fmt.Errorf("get user: %w", repository.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)

	de = ToDomainError(repository.ErrConflict)
	assert.Equal(t, "CONFLICT", de.Code)

	de = ToDomainError(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Contains(t, de.Error(), "disk on fire")

	wrapped := fmt.Errorf("handler: %w", NewUnauthorized("nope"))
	de = ToDomainError(wrapped)
	assert.Equal(t, "UNAUTHORIZED", de.Code)
}
