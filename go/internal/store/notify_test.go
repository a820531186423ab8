package store

import (
	"testing"

	"github.com/mcdev12/livescore/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessCodeChange(t *testing.T) {
	change, err := ParseAccessCodeChange(`{"code":"ABC123","status":"revoked"}`)
	require.NoError(t, err)
	assert.Equal(t, AccessCodeChange{Code: "ABC123", Status: models.AccessCodeStatusRevoked}, change)

	_, err = ParseAccessCodeChange(`{"status":"expired"}`)
	assert.Error(t, err)

	_, err = ParseAccessCodeChange(`not json`)
	assert.Error(t, err)
}
