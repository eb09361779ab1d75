package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackKindIsValid(t *testing.T) {
	assert.True(t, CallbackFactCheck.IsValid())
	assert.True(t, CallbackSynthesis.IsValid())
	assert.True(t, CallbackDeepDive.IsValid())
	assert.False(t, CallbackKind("zzz").IsValid())
	assert.False(t, CallbackKind("").IsValid())
}

func TestCallbackPrompt(t *testing.T) {
	for _, kind := range []CallbackKind{CallbackFactCheck, CallbackSynthesis, CallbackDeepDive} {
		p, ok := CallbackPrompt(kind)
		assert.True(t, ok, "kind %s", kind)
		assert.NotEmpty(t, p)
	}

	_, ok := CallbackPrompt("zzz")
	assert.False(t, ok)
}
