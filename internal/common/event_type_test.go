package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "INSERT", EventInsert.String())
	assert.Equal(t, "UPDATE", EventUpdate.String())
	assert.Equal(t, "DELETE", EventDelete.String())
}

func TestEventType_IsValid(t *testing.T) {
	assert.True(t, EventInsert.IsValid())
	assert.True(t, EventUpdate.IsValid())
	assert.True(t, EventDelete.IsValid())

	invalidType := EventType("TRUNCATE")
	assert.False(t, invalidType.IsValid())
	assert.Equal(t, EventMask(0), invalidType.Mask())
}

func TestParseEventType_CaseInsensitive(t *testing.T) {
	edgeCases := []struct {
		input    string
		expected EventType
	}{
		{"insert", EventInsert},
		{" Delete ", EventDelete},
		{"UPDATE", EventUpdate},
	}

	for _, testCase := range edgeCases {
		result := ParseEventType(testCase.input)
		assert.Equal(t, testCase.expected, result, "Failed for input: %s", testCase.input)
	}
}

func TestEventMask_Has(t *testing.T) {
	assert.True(t, MaskAll.Has(EventInsert))
	assert.True(t, MaskAll.Has(EventDelete))
	assert.True(t, MaskInsert.Has(EventInsert))
	assert.False(t, MaskInsert.Has(EventDelete))
	assert.False(t, MaskAll.Has(EventType("bogus")))
}

func TestParseEventMask(t *testing.T) {
	cases := []struct {
		input    string
		expected EventMask
	}{
		{"", MaskAll},
		{"*", MaskAll},
		{"INSERT", MaskInsert},
		{"insert,delete", MaskInsert | MaskDelete},
		{"INSERT,*", MaskAll},
		{"nothing", 0},
	}

	for _, c := range cases {
		assert.Equal(t, c.expected, ParseEventMask(c.input), "Failed for input: %q", c.input)
	}
}
