package feed

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

func TestParse(t *testing.T) {
	doc, err := Parse(readFixture(t, "rloi.xml"))
	require.NoError(t, err)

	assert.Equal(t, "2018-06-29", doc.Date)
	assert.Equal(t, "11:15:00", doc.Time)
	require.Len(t, doc.Stations, 3)
	assert.Equal(t, 3, doc.ValueSetCount())

	st := doc.Stations[0]
	assert.Equal(t, "test1", st.Reference)
	assert.Equal(t, "North West", st.Region)
	assert.Equal(t, "Test Station", st.Name)
	assert.Equal(t, "SD1234567890", st.NGR)
	require.Len(t, st.ValueSets, 2)

	vs := st.ValueSets[0]
	assert.Equal(t, "Water Level", vs.Parameter)
	assert.Equal(t, "Stage", vs.Qualifier)
	assert.Equal(t, "m", vs.Units)
	assert.Equal(t, "Instantaneous", vs.DataType)
	assert.Equal(t, "15 min", vs.Period)
	assert.Equal(t, "10:15:00", vs.StartTime)
	require.Len(t, vs.Readings, 3)
	assert.Equal(t, Reading{Date: "2018-06-29", Time: "10:15:00", Value: "1.986"}, vs.Readings[0])
	assert.Equal(t, "1.988", vs.Readings[2].Value)

	assert.Empty(t, doc.Stations[2].ValueSets)
}

func TestParseEmptyValues(t *testing.T) {
	doc, err := Parse(readFixture(t, "empty.xml"))
	require.NoError(t, err)
	assert.Equal(t, 0, doc.ValueSetCount())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Parse([]byte("<EATimeSeriesDataExchangeFormat><Station>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse feed XML")

	_, err = Parse([]byte("<other/>"))
	require.Error(t, err)
}

func TestValueSetCountNil(t *testing.T) {
	var doc *Document
	assert.Equal(t, 0, doc.ValueSetCount())
}
