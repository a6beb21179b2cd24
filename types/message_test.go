package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasUserTurn(t *testing.T) {
	t.Parallel()

	assert.False(t, HasUserTurn(nil))
	assert.False(t, HasUserTurn([]Message{NewAssistantMessage("hi")}))
	assert.True(t, HasUserTurn([]Message{NewAssistantMessage("hi"), NewUserMessage("q")}))
}

func TestFormatHistory(t *testing.T) {
	t.Parallel()

	got := FormatHistory([]Message{
		NewUserMessage("what is asthma?"),
		NewAssistantMessage("a chronic disease"),
	})
	assert.Equal(t, "user: what is asthma?\nassistant: a chronic disease", got)
	assert.Empty(t, FormatHistory(nil))
}
