package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBasic(t *testing.T) {
	csv := "name,age,city\nalice,30,NY\nbob,25,LA\n"
	tab, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, tab.Rows())
	assert.Equal(t, 3, tab.Cols())
	assert.Equal(t, []string{"name", "age", "city"}, tab.Header())

	age := tab.Column("age")
	require.NotNil(t, age)
	assert.Equal(t, KindNumeric, age.Kind)
	assert.Equal(t, []float64{30, 25}, age.Numeric)

	name := tab.Column("name")
	require.NotNil(t, name)
	assert.Equal(t, KindCategorical, name.Kind)
}

func TestLoadEmptyInput(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestLoadHeaderOnly(t *testing.T) {
	_, err := Load(strings.NewReader("a,b,c\n"))
	assert.ErrorIs(t, err, ErrEmptyTable)
}

func TestLoadMalformedQuoting(t *testing.T) {
	_, err := Load(strings.NewReader("a,b\n\"unterminated,1\n"))
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestMixedColumnIsCategorical(t *testing.T) {
	// A single unparsable value makes the whole column categorical; it is
	// not treated as numeric with one missing entry.
	csv := "v\n1\n2\nabc\n"
	tab, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	col := tab.Column("v")
	require.NotNil(t, col)
	assert.Equal(t, KindCategorical, col.Kind)
	assert.Nil(t, col.Numeric)
}

func TestMissingTokens(t *testing.T) {
	csv := "x\n1\n\nNA\nnull\nNaN\n2\n"
	tab, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	col := tab.Column("x")
	require.NotNil(t, col)
	// Missing tokens do not break numeric inference.
	assert.Equal(t, KindNumeric, col.Kind)
	missing := 0
	for _, p := range col.Present {
		if !p {
			missing++
		}
	}
	assert.Equal(t, 4, missing)
}

func TestAllMissingColumnIsCategorical(t *testing.T) {
	csv := "a,b\n1,\n2,\n3,NA\n"
	tab, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	col := tab.Column("b")
	require.NotNil(t, col)
	assert.Equal(t, KindCategorical, col.Kind)
}

func TestShortRowsArePaddedAsMissing(t *testing.T) {
	csv := "a,b\n1,2\n3\n"
	tab, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, tab.Rows())
	b := tab.Column("b")
	require.NotNil(t, b)
	assert.False(t, b.Present[1])
}

func TestLongRowsAreRejected(t *testing.T) {
	// Extra fields would otherwise be dropped without a trace.
	csv := "a,b\n1,2,3\n"
	_, err := Load(strings.NewReader(csv))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "expected 2 fields, saw 3")
}

func TestSample(t *testing.T) {
	csv := "a\n1\n2\n3\n"
	tab, err := Load(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, tab.Sample(2))
	assert.Len(t, tab.Sample(10), 3)
}
