package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategories(t *testing.T) {
	cats, err := ParseCategories("")
	require.NoError(t, err)
	assert.Equal(t, AllCategories, cats)

	cats, err = ParseCategories(" library, markers ,")
	require.NoError(t, err)
	assert.Equal(t, Categories{CategoryLibrary: true, CategoryMarkers: true}, cats)

	_, err = ParseCategories("library,everything")
	assert.Error(t, err)
}
