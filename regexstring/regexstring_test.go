package regexstring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/gramforge/charset"
	"github.com/aledsdavies/gramforge/regex"
	"github.com/aledsdavies/gramforge/regexstring"
)

func TestParseLiteralsAndDot(t *testing.T) {
	node, err := regexstring.Parse("ab.c")
	require.NoError(t, err)
	require.Equal(t, regex.Join([]regex.Node{
		regex.Literal("ab"),
		regex.Any(),
		regex.Literal("c"),
	}), node)
}

func TestParseEscapedChar(t *testing.T) {
	node, err := regexstring.Parse(`a\.b`)
	require.NoError(t, err)
	require.Equal(t, regex.Join([]regex.Node{
		regex.Literal("a"),
		regex.Literal("."),
		regex.Literal("b"),
	}), node)
}

func TestParseDigitAndSpaceClasses(t *testing.T) {
	for pattern, want := range map[string]func() (regex.Node, error){
		`\d`: func() (regex.Node, error) { return regex.OneOf([]charset.Range{{Start: '0', End: '9'}}) },
		`\D`: func() (regex.Node, error) { return regex.NotOneOf([]charset.Range{{Start: '0', End: '9'}}) },
		`\s`: func() (regex.Node, error) {
			return regex.OneOf([]charset.Range{
				{Start: ' ', End: ' '}, {Start: '\t', End: '\t'}, {Start: '\n', End: '\n'},
				{Start: '\r', End: '\r'}, {Start: '\f', End: '\f'}, {Start: '\v', End: '\v'},
			})
		},
		`\S`: func() (regex.Node, error) {
			return regex.NotOneOf([]charset.Range{
				{Start: ' ', End: ' '}, {Start: '\t', End: '\t'}, {Start: '\n', End: '\n'},
				{Start: '\r', End: '\r'}, {Start: '\f', End: '\f'}, {Start: '\v', End: '\v'},
			})
		},
	} {
		t.Run(pattern, func(t *testing.T) {
			node, err := regexstring.Parse(pattern)
			require.NoError(t, err)
			expected, err := want()
			require.NoError(t, err)
			require.Equal(t, expected, node)
		})
	}
}

func TestParseCharacterSets(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		ranges  []charset.Range
		negated bool
	}{
		{"plain", "[abc]", []charset.Range{{Start: 'a', End: 'a'}, {Start: 'b', End: 'b'}, {Start: 'c', End: 'c'}}, false},
		{"range", "[a-z]", []charset.Range{{Start: 'a', End: 'z'}}, false},
		{"negated range", "[^a-z]", []charset.Range{{Start: 'a', End: 'z'}}, true},
		{"escaped bracket", `[a\]b]`, []charset.Range{{Start: 'a', End: 'a'}, {Start: ']', End: ']'}, {Start: 'b', End: 'b'}}, false},
		{"leading hyphen literal", "[-az]", []charset.Range{{Start: '-', End: '-'}, {Start: 'a', End: 'a'}, {Start: 'z', End: 'z'}}, false},
		{"trailing hyphen literal", "[az-]", []charset.Range{{Start: 'a', End: 'a'}, {Start: 'z', End: 'z'}, {Start: '-', End: '-'}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := regexstring.Parse(tc.pattern)
			require.NoError(t, err)
			var expected regex.Node
			if tc.negated {
				expected, err = regex.NotOneOf(tc.ranges)
			} else {
				expected, err = regex.OneOf(tc.ranges)
			}
			require.NoError(t, err)
			require.Equal(t, expected, node)
		})
	}
}

func TestParseCharacterSetReverseRangeRejected(t *testing.T) {
	_, err := regexstring.Parse("[z-a]")
	require.ErrorIs(t, err, regex.ErrReverseRange)
}

func TestParseQuantifiers(t *testing.T) {
	lit := func(s string) regex.Node { return regex.Literal(s) }

	cases := []struct {
		name    string
		pattern string
		min     int
		max     int
	}{
		{"star", "a*", 0, regex.Unbounded},
		{"plus", "a+", 1, regex.Unbounded},
		{"question", "a?", 0, 1},
		{"exact", "a{3}", 3, 3},
		{"at least", "a{2,}", 2, regex.Unbounded},
		{"range", "a{2,5}", 2, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			node, err := regexstring.Parse(tc.pattern)
			require.NoError(t, err)
			expected, err := regex.Loop(lit("a"), tc.min, tc.max)
			require.NoError(t, err)
			require.Equal(t, expected, node)
		})
	}
}

func TestParseQuantifierReverseBoundRejected(t *testing.T) {
	_, err := regexstring.Parse("a{5,2}")
	require.ErrorIs(t, err, regex.ErrBoundOrder)
}

func TestParseConcatenationAndAlternation(t *testing.T) {
	node, err := regexstring.Parse("ab|cd")
	require.NoError(t, err)
	require.Equal(t, regex.Choice([]regex.Node{
		regex.Literal("ab"),
		regex.Literal("cd"),
	}), node)
}

func TestParseEmptyAlternative(t *testing.T) {
	node, err := regexstring.Parse("a|")
	require.NoError(t, err)
	require.Equal(t, regex.Choice([]regex.Node{
		regex.Literal("a"),
		regex.Join(nil),
	}), node)
}

func TestParseGrouping(t *testing.T) {
	node, err := regexstring.Parse("(ab)+")
	require.NoError(t, err)
	expected, err := regex.Loop(regex.Literal("ab"), 1, regex.Unbounded)
	require.NoError(t, err)
	require.Equal(t, expected, node)
}

func TestParseNestedGroupAndAlternation(t *testing.T) {
	node, err := regexstring.Parse("a(b|c)d")
	require.NoError(t, err)
	require.Equal(t, regex.Join([]regex.Node{
		regex.Literal("a"),
		regex.Choice([]regex.Node{regex.Literal("b"), regex.Literal("c")}),
		regex.Literal("d"),
	}), node)
}

func TestParseUnicodePropertyNotSupported(t *testing.T) {
	cases := []string{`\p{L}`, `\P{L}`, `\p[A-Z]`, `\P[A-Z]`}
	for _, pattern := range cases {
		t.Run(pattern, func(t *testing.T) {
			_, err := regexstring.Parse(pattern)
			require.Error(t, err)
		})
	}
}

func TestParseUnexpectedCharacterError(t *testing.T) {
	_, err := regexstring.Parse("a{3x}")
	require.Error(t, err)
}

func TestParseUnbalancedGroupError(t *testing.T) {
	_, err := regexstring.Parse("(ab")
	require.Error(t, err)
}
