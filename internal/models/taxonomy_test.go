package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupTaxonomies(t *testing.T) {
	items := []Taxonomy{
		{Category: "sector", Value: "education", Label: "Education"},
		{Category: "sector", Value: "health", Label: "Health"},
		{Category: "stage", Value: "active"},
	}

	grouped := GroupTaxonomies(items)
	require.Len(t, grouped, 2)

	require.Len(t, grouped["sector"], 2)
	assert.Equal(t, "education", grouped["sector"][0].Value)
	assert.Equal(t, "Health", grouped["sector"][1].Label)

	// Missing labels fall back to the value.
	require.Len(t, grouped["stage"], 1)
	assert.Equal(t, "active", grouped["stage"][0].Label)
}

func TestGroupTaxonomiesEmpty(t *testing.T) {
	grouped := GroupTaxonomies(nil)
	assert.NotNil(t, grouped)
	assert.Empty(t, grouped)
}
