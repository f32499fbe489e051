package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassHashRoundTrip(t *testing.T) {
	class := &Class{
		ID:     "c1",
		Type:   "feed",
		Status: StatusInProcess,
		Fields: map[string]string{"url": "https://example.com/feed"},
	}

	hash := class.Hash()
	assert.Equal(t, "c1", hash[FieldClassID])
	assert.Equal(t, "feed", hash[FieldClassType])
	assert.Equal(t, "1", hash[FieldStatus])
	assert.Equal(t, "https://example.com/feed", hash["url"])

	got := ClassFromHash(hash)
	assert.Equal(t, class.ID, got.ID)
	assert.Equal(t, class.Type, got.Type)
	assert.Equal(t, class.Status, got.Status)
	assert.Equal(t, class.Fields, got.Fields)
}

func TestClassFromHash_DefaultsOnMissingFields(t *testing.T) {
	got := ClassFromHash(map[string]string{FieldClassID: "c1"})
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, StatusIdle, got.Status)
	assert.Empty(t, got.Type)
	assert.Empty(t, got.Fields)
}
