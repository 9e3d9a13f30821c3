package docstore

import (
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCSQLUsesNamedArguments(t *testing.T) {
	query, values := rpcSQL("hybrid_search_meetings_organization", []rpcArg{
		{name: "query_text", value: "q"},
		{name: "query_embedding", value: "[1,2]", cast: "::vector"},
		{name: "match_count", value: 20},
		{name: "organization_input", value: "ACME Corp"},
	})
	assert.Equal(t,
		"SELECT * FROM hybrid_search_meetings_organization(query_text => $1, query_embedding => $2::vector, match_count => $3, organization_input => $4)",
		query)
	assert.Equal(t, []any{"q", "[1,2]", 20, "ACME Corp"}, values)
}

func TestTravelArgsKeepFixedOrder(t *testing.T) {
	vecs := make([][]float32, 8)
	for i := range vecs {
		vecs[i] = []float32{float32(i)}
	}
	args := travelArgs(TravelVectorsFrom(vecs), 10)
	require.Len(t, args, 9)

	want := []string{
		"location_vector", "duration_vector", "budget_vector", "transportation_vector",
		"accommodation_vector", "food_vector", "activities_vector", "notes_vector",
	}
	for i, name := range want {
		assert.Equal(t, name, args[i].name)
		assert.Equal(t, vectorLiteral([]float32{float32(i)}), args[i].value)
		assert.Equal(t, "::vector", args[i].cast)
	}
	assert.Equal(t, "match_count", args[8].name)
	assert.Equal(t, 10, args[8].value)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,2.25]", vectorLiteral([]float32{0.5, -1, 2.25}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestMatchCountDefaults(t *testing.T) {
	assert.Equal(t, DefaultMeetingMatchCount, matchCountOr(0, DefaultMeetingMatchCount))
	assert.Equal(t, 5, matchCountOr(5, DefaultMeetingMatchCount))
}

func TestSortByScore(t *testing.T) {
	records := []Record{
		{"id": "a", ScoreColumn: 0.2},
		{"id": "b", ScoreColumn: json.Number("0.9")},
		{"id": "c"},
		{"id": "d", ScoreColumn: 0.5},
	}
	SortByScore(records)
	ids := []string{}
	for _, r := range records {
		ids = append(ids, r["id"].(string))
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)

	unscored := []Record{{"id": "x"}, {"id": "y"}}
	SortByScore(unscored)
	assert.Equal(t, "x", unscored[0]["id"])
}

func TestNormalizeValue(t *testing.T) {
	var num pgtype.Numeric
	require.NoError(t, num.Scan("1299.50"))
	n, ok := normalizeValue(num).(json.Number)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString(n.String()).Equal(decimal.RequireFromString("1299.5")))

	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	assert.Equal(t, "12345678-9abc-def0-1234-56789abcdef0", normalizeValue(id))

	assert.Nil(t, normalizeValue(pgtype.Numeric{}))
	assert.Equal(t, []any{"12345678-9abc-def0-1234-56789abcdef0"}, normalizeValue([]any{id}))
}

func TestParseHighlights(t *testing.T) {
	cases := map[string]struct {
		in   any
		want []string
	}{
		"list":          {in: []any{"Ha Long Bay", "Street food"}, want: []string{"Ha Long Bay", "Street food"}},
		"strings":       {in: []string{" a ", ""}, want: []string{"a"}},
		"json":          {in: `["Kayaking", "Caves"]`, want: []string{"Kayaking", "Caves"}},
		"python":        {in: `['Sapa trek', 'Homestay, rustic']`, want: []string{"Sapa trek", "Homestay, rustic"}},
		"postgres":      {in: `{"Hoi An lanterns",Cooking}`, want: []string{"Hoi An lanterns", "Cooking"}},
		"comma":         {in: "Beach, Snorkeling ,Sunset", want: []string{"Beach", "Snorkeling", "Sunset"}},
		"empty":         {in: "", want: []string{}},
		"nil":           {in: nil, want: []string{}},
		"python escape": {in: `['It\'s great']`, want: []string{"It's great"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseHighlights(tc.in))
		})
	}
}

func TestParseTravelPackage(t *testing.T) {
	rec := Record{
		"id":            "pkg-1",
		"title":         "Vietnam Adventure",
		"provider_id":   "prov-1",
		"location_id":   "loc-1",
		"price":         json.Number("1299.50"),
		"duration_days": int32(7),
		"highlights":    "['Ha Long Bay', 'Kayaking']",
		"description":   "Seven days up north",
		"image_url":     "https://example.com/a.jpg",
		ScoreColumn:     0.91,
	}
	pkg, err := ParseTravelPackage(rec)
	require.NoError(t, err)
	assert.Equal(t, "pkg-1", pkg.ID)
	assert.True(t, pkg.Price.Equal(decimal.RequireFromString("1299.5")))
	assert.Equal(t, 7, pkg.DurationDays)
	assert.Equal(t, []string{"Ha Long Bay", "Kayaking"}, pkg.Highlights)
	require.NotNil(t, pkg.ImageURL)

	b, err := json.Marshal(pkg)
	require.NoError(t, err)
	assert.NotContains(t, string(b), ScoreColumn)

	delete(rec, "image_url")
	pkg, err = ParseTravelPackage(rec)
	require.NoError(t, err)
	assert.Nil(t, pkg.ImageURL)
}

func TestParseTravelPackageReportsMissingKeys(t *testing.T) {
	_, err := ParseTravelPackage(Record{"id": "x", "title": "t"})
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Contains(t, inc.Missing, "price")
	assert.Contains(t, inc.Missing, "highlights")
	assert.NotContains(t, inc.Missing, "id")
}
