package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemContentWithoutContext(t *testing.T) {
	assert.Equal(t, "You are terse.", buildSystemContent("You are terse.", nil))
}

func TestBuildSystemContentNumbersDocuments(t *testing.T) {
	content := buildSystemContent("Base prompt.", []string{"first snippet", "second snippet"})

	assert.Contains(t, content, "Base prompt.")
	assert.Contains(t, content, "Use the following context to answer questions accurately:")
	assert.Contains(t, content, "[Document 1]\nfirst snippet")
	assert.Contains(t, content, "[Document 2]\nsecond snippet")
}

func TestEstimateCost(t *testing.T) {
	assert.Equal(t, "0.060000", estimateCost("gpt-4", 1000))
	assert.Equal(t, "0.001000", estimateCost("gpt-3.5-turbo", 500))
	// Unknown models fall back to the blended default rate.
	assert.Equal(t, "0.030000", estimateCost("mystery-model", 1000))
	assert.Equal(t, "0.000000", estimateCost("gpt-4o", 0))
}
