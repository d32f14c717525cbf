package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_HasPrefix(t *testing.T) {
	msg := Message{Text: "!kick 111"}

	assert.True(t, msg.HasPrefix("!"))
	assert.False(t, msg.HasPrefix("/"))
	assert.False(t, msg.HasPrefix(""))
}
