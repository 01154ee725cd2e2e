package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, typ := range All() {
		parsed, err := Parse(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	_, err := Parse("janitor")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Copywriter.Valid())
	assert.False(t, Type("COPYWRITER").Valid())
	assert.False(t, Type("").Valid())
}
