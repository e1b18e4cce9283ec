package cleaning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom/internal/dataset"
)

func loadTable(t *testing.T, csv string) *dataset.Table {
	t.Helper()
	tab, err := dataset.Load(strings.NewReader(csv))
	require.NoError(t, err)
	return tab
}

func TestCleanAutoImputesMedianAndMode(t *testing.T) {
	tab := loadTable(t, "x,city\n1,NY\n,LA\n3,\n5,NY\n")
	require.NoError(t, Clean(tab, StrategyAuto, ""))

	x := tab.Column("x")
	require.NotNil(t, x)
	assert.Equal(t, dataset.KindNumeric, x.Kind)
	// Median of {1,3,5} is 3.
	assert.Equal(t, "3", x.Cells[1])
	assert.True(t, x.Present[1])

	city := tab.Column("city")
	require.NotNil(t, city)
	// Mode of {NY, LA, NY} is NY.
	assert.Equal(t, "NY", city.Cells[2])
}

func TestCleanModeTieBreaksOnFirstSeen(t *testing.T) {
	// a and b both occur twice; a appeared first, so a is the mode even
	// though b reaches its final count earlier in the scan.
	tab := loadTable(t, "v\na\nb\nb\na\n\n")
	require.NoError(t, Clean(tab, StrategyAuto, ""))
	v := tab.Column("v")
	require.NotNil(t, v)
	assert.Equal(t, "a", v.Cells[4])
}

func TestCleanDropRemovesIncompleteRows(t *testing.T) {
	tab := loadTable(t, "a,b\n1,x\n,y\n3,\n4,z\n")
	require.NoError(t, Clean(tab, StrategyDrop, ""))
	assert.Equal(t, 2, tab.Rows())
	a := tab.Column("a")
	require.NotNil(t, a)
	assert.Equal(t, []string{"1", "4"}, a.Cells)
}

func TestCleanDropAllRowsFails(t *testing.T) {
	tab := loadTable(t, "a\n\nNA\n")
	err := Clean(tab, StrategyDrop, "")
	assert.ErrorIs(t, err, dataset.ErrEmptyTable)
}

func TestCleanFillRequiresValue(t *testing.T) {
	tab := loadTable(t, "a\n1\n\n")
	assert.ErrorIs(t, Clean(tab, StrategyFill, ""), ErrFillValueRequired)
	require.NoError(t, Clean(tab, StrategyFill, "0"))
	assert.Equal(t, "0", tab.Column("a").Cells[1])
}

func TestCleanReclassifiesNumericAfterFill(t *testing.T) {
	// All-missing columns start categorical; a numeric fill flips them.
	tab := loadTable(t, "a,b\n1,\n2,\n")
	require.NoError(t, Clean(tab, StrategyFill, "7"))
	b := tab.Column("b")
	require.NotNil(t, b)
	assert.Equal(t, dataset.KindNumeric, b.Kind)
}

func TestCleanUnknownStrategy(t *testing.T) {
	tab := loadTable(t, "a\n1\n")
	assert.Error(t, Clean(tab, Strategy("bogus"), ""))
}

func TestEncodeRoundTrip(t *testing.T) {
	tab := loadTable(t, "a,b\n1,x\n2,y\n")
	out, err := Encode(tab)
	require.NoError(t, err)
	again, err := dataset.Load(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, tab.Header(), again.Header())
	assert.Equal(t, tab.Rows(), again.Rows())
	assert.Equal(t, tab.Column("b").Cells, again.Column("b").Cells)
}
