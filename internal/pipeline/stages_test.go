package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/covidash/internal/domain/model"
	"github.com/tigerroll/covidash/internal/pipeline"
	"github.com/tigerroll/covidash/pkg/support/exception"
)

func TestParseDateLabel(t *testing.T) {
	d, err := pipeline.ParseDateLabel("1/22/20")
	require.NoError(t, err)
	assert.Equal(t, day(2020, time.January, 22), d)

	d, err = pipeline.ParseDateLabel("12/31/21")
	require.NoError(t, err)
	assert.Equal(t, day(2021, time.December, 31), d)

	for _, bad := range []string{"1-22-20", "2020-01-22", "22/1/20", "Lat", ""} {
		_, err := pipeline.ParseDateLabel(bad)
		assert.True(t, exception.IsDateParseError(err), bad)
	}
}

func TestNormalize(t *testing.T) {
	opts := pipeline.DefaultOptions().Normalize
	raw := wide(model.Confirmed, []string{"A", "X", "1", "2", "3", "4"}, []string{"B", "X", "1", "2", "5", "6"})

	out, err := pipeline.Normalize(raw, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "1/22/20", "1/23/20"}, out.Columns)
	assert.Equal(t, [][]string{{"X", "3", "4"}, {"X", "5", "6"}}, out.Rows)
	assert.Equal(t, upstreamHeader, raw.Columns, "input is not modified")
}

func TestNormalize_StrictAndTolerant(t *testing.T) {
	raw := &model.RawTable{
		Metric:  model.Recovered,
		Columns: []string{"Country/Region", "Lat", "1/22/20"},
		Rows:    [][]string{{"X", "0", "1"}},
	}
	opts := pipeline.DefaultOptions().Normalize

	_, err := pipeline.Normalize(raw, opts)
	assert.True(t, exception.IsSchemaError(err))
	assert.Contains(t, err.Error(), "Province/State")

	opts.Tolerant = true
	out, err := pipeline.Normalize(raw, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "1/22/20"}, out.Columns)
}

func TestNormalize_SchemaErrors(t *testing.T) {
	opts := pipeline.NormalizeOptions{Rename: map[string]string{"Country/Region": "country"}, Tolerant: true}

	cases := map[string]*model.RawTable{
		"no country column": {Columns: []string{"Region", "1/22/20"}},
		"duplicate column":  {Columns: []string{"Country/Region", "country", "1/22/20"}},
		"short row":         {Columns: []string{"Country/Region", "1/22/20"}, Rows: [][]string{{"X"}}},
	}
	for name, table := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pipeline.Normalize(table, opts)
			assert.True(t, exception.IsSchemaError(err))
		})
	}
}

func TestMelt(t *testing.T) {
	table := &model.RawTable{
		Metric:  model.Confirmed,
		Columns: []string{"country", "1/22/20", "1/23/20"},
		Rows:    [][]string{{"X", "3", "4"}, {"Y", "", " 6 "}},
	}

	out, err := pipeline.Melt(table)
	require.NoError(t, err)
	assert.Equal(t, []model.LongRecord{
		{Country: "X", Date: day(2020, time.January, 22), Count: 3},
		{Country: "Y", Date: day(2020, time.January, 22), Count: 0},
		{Country: "X", Date: day(2020, time.January, 23), Count: 4},
		{Country: "Y", Date: day(2020, time.January, 23), Count: 6},
	}, out)
}

func TestMelt_Errors(t *testing.T) {
	_, err := pipeline.Melt(&model.RawTable{Columns: []string{"country", "1/22/20"}, Rows: [][]string{{"X", "3.5"}}})
	assert.True(t, exception.IsSchemaError(err))

	_, err = pipeline.Melt(&model.RawTable{Columns: []string{"region", "1/22/20"}})
	assert.True(t, exception.IsSchemaError(err))

	_, err = pipeline.Melt(&model.RawTable{Columns: []string{"country", "Jan 22"}})
	assert.True(t, exception.IsDateParseError(err))
}

func TestAggregate_SumsWithoutClamping(t *testing.T) {
	d := day(2020, time.March, 1)
	out := pipeline.Aggregate([]model.LongRecord{
		{Country: "Y", Date: d, Count: 2},
		{Country: "X", Date: d, Count: 5},
		{Country: "X", Date: d, Count: -7},
		{Country: "X", Date: d.AddDate(0, 0, -1), Count: 1},
	}, nil)

	assert.Equal(t, []model.AggregatedRecord{
		{Country: "X", Date: d.AddDate(0, 0, -1), Count: 1},
		{Country: "X", Date: d, Count: -2},
		{Country: "Y", Date: d, Count: 2},
	}, out)
}

func TestCaseFatalityRatio(t *testing.T) {
	cases := []struct {
		death, confirmed int64
		mode             pipeline.RoundingMode
		want             int64
		ok               bool
	}{
		{1, 8, pipeline.RoundHalfUp, 13, true},
		{1, 8, pipeline.RoundHalfEven, 12, true},
		{27, 200, pipeline.RoundHalfUp, 14, true},
		{27, 200, pipeline.RoundHalfEven, 14, true},
		{1, 3, pipeline.RoundHalfUp, 33, true},
		{0, 50, pipeline.RoundHalfUp, 0, true},
		{5, 0, pipeline.RoundHalfUp, 0, false},
		{0, 0, pipeline.RoundHalfEven, 0, false},
	}
	for _, c := range cases {
		got, ok := pipeline.CaseFatalityRatio(c.death, c.confirmed, c.mode)
		assert.Equal(t, c.want, got, "%d/%d %s", c.death, c.confirmed, c.mode)
		assert.Equal(t, c.ok, ok)
	}
}

func TestParseModes(t *testing.T) {
	m, err := pipeline.ParseRoundingMode("")
	require.NoError(t, err)
	assert.Equal(t, pipeline.RoundHalfUp, m)
	_, err = pipeline.ParseRoundingMode("floor")
	assert.Error(t, err)

	j, err := pipeline.ParseJoinMode("")
	require.NoError(t, err)
	assert.Equal(t, pipeline.JoinInner, j)
	_, err = pipeline.ParseJoinMode("left")
	assert.Error(t, err)
}
