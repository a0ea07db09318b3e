package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateMatcher_PlainVariableDoesNotCrossSlash(t *testing.T) {
	m, err := newTemplateMatcher("file:///docs/{name}")
	require.NoError(t, err)

	assert.True(t, m.Match("file:///docs/readme.md"))
	assert.False(t, m.Match("file:///docs/sub/readme.md"))
}

func TestTemplateMatcher_PlusVariableCrossesSlash(t *testing.T) {
	m, err := newTemplateMatcher("file:///docs/{+path}")
	require.NoError(t, err)

	assert.True(t, m.Match("file:///docs/sub/readme.md"))
}

func TestTemplateMatcher_LiteralPrefixTieBreak(t *testing.T) {
	short, err := newTemplateMatcher("file:///{+path}")
	require.NoError(t, err)
	long, err := newTemplateMatcher("file:///docs/{name}")
	require.NoError(t, err)

	assert.True(t, short.Match("file:///docs/readme.md"))
	assert.True(t, long.Match("file:///docs/readme.md"))
	assert.Greater(t, long.literalChars, short.literalChars)
}

func TestPercentEncodeTemplateLiterals_PreservesExpressions(t *testing.T) {
	got := percentEncodeTemplateLiterals("file:///{path}")
	assert.Equal(t, "file%3A%2F%2F%2F{path}", got)
}
