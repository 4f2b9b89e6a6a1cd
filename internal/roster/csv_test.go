package roster

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	csvModalities = []string{"ct", "mr"}
	csvSkills     = []string{"Notfall", "Herz", "Msk_Spezial"}
)

func TestParseSkillCSV(t *testing.T) {
	sheet := "\ufeffWorker,Notfall_ct,Herz_ct,Msk_Spezial_mr\n" +
		"Dr. Müller (CT1),1,w,-1\n" +
		"Schmidt,0,,1\n" +
		",1,1,1\n"

	m, err := ParseSkillCSV(strings.NewReader(sheet), csvModalities, csvSkills)
	require.NoError(t, err)
	require.Len(t, m, 2)

	assert.Equal(t, Active, m["Dr. Müller"]["ct"]["Notfall"])
	assert.Equal(t, Weighted, m["Dr. Müller"]["ct"]["Herz"])
	assert.Equal(t, Excluded, m["Dr. Müller"]["mr"]["Msk_Spezial"])
	assert.Equal(t, Passive, m["Schmidt"]["ct"]["Notfall"])
	_, ok := m["Schmidt"]["ct"]["Herz"]
	assert.False(t, ok, "a blank cell is no override")
}

func TestParseSkillCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		sheet string
	}{
		{"missing worker column", "Name,Notfall_ct\nA,1\n"},
		{"unknown modality", "Worker,Notfall_xr\nA,1\n"},
		{"unknown skill", "Worker,Mamma_ct\nA,1\n"},
		{"bad cell", "Worker,Notfall_ct\nA,yes\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSkillCSV(strings.NewReader(tt.sheet), csvModalities, csvSkills)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := ParseSkillCSV(strings.NewReader("Worker,Notfall_ct\nA,5\n"), csvModalities, csvSkills)
	if !errors.Is(err, ErrInvalidSkillValue) {
		t.Errorf("expected ErrInvalidSkillValue, got %v", err)
	}
}

func TestApplySkillsModes(t *testing.T) {
	doc := Document{Workers: []Worker{
		{Name: "A", Skills: map[string]map[string]SkillValue{"ct": {"Herz": Active}}},
		{Name: "B"},
	}}
	matrix := SkillMatrix{
		"A": {"ct": {"Herz": Excluded}},
		"C": {"ct": {"Herz": Active}},
	}

	out, stats := ApplySkills(doc, matrix, ImportReplace)
	assert.Equal(t, ImportStats{Added: 1, Updated: 1}, stats)
	require.Len(t, out.Workers, 2)
	assert.Equal(t, Excluded, out.Workers[0].Skills["ct"]["Herz"])

	out, stats = ApplySkills(doc, matrix, ImportMerge)
	assert.Equal(t, ImportStats{Added: 1, Updated: 1}, stats)
	assert.Len(t, out.Workers, 3)

	out, stats = ApplySkills(doc, matrix, ImportAddOnly)
	assert.Equal(t, ImportStats{Added: 1, Skipped: 1}, stats)
	require.Len(t, out.Workers, 3)
	assert.Equal(t, Active, out.Workers[0].Skills["ct"]["Herz"])
}

func TestWriteSkillCSVRoundTrip(t *testing.T) {
	doc := Document{Workers: []Worker{
		{Name: "A", Skills: map[string]map[string]SkillValue{"ct": {"Herz": Weighted}, "mr": {"Msk_Spezial": Excluded}}},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteSkillCSV(&buf, doc, csvModalities, csvSkills))

	m, err := ParseSkillCSV(&buf, csvModalities, csvSkills)
	require.NoError(t, err)
	assert.Equal(t, Weighted, m["A"]["ct"]["Herz"])
	assert.Equal(t, Excluded, m["A"]["mr"]["Msk_Spezial"])
	_, ok := m["A"]["ct"]["Notfall"]
	assert.False(t, ok, "absent overrides stay absent")
}

func TestSkillCSVRoundTripKeepsTaskValues(t *testing.T) {
	tasks := testTasks()
	doc := Document{Workers: []Worker{
		{Name: "A", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}}},
		{
			Name:    "B",
			Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}},
			Skills:  map[string]map[string]SkillValue{"ct": {"Notfall": Passive}},
		},
	}}
	ix, err := Build(doc, tasks)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSkillCSV(&buf, ix.Document(), csvModalities, csvSkills))
	m, err := ParseSkillCSV(&buf, csvModalities, csvSkills)
	require.NoError(t, err)

	out, stats := ApplySkills(ix.Document(), m, ImportReplace)
	assert.Equal(t, ImportStats{Updated: 2}, stats)
	reimported, err := Build(out, tasks)
	require.NoError(t, err)

	now := reimported.At(at(9, 0))
	v, err := now.SkillValue("A", "ct", "Notfall")
	require.NoError(t, err)
	assert.Equal(t, Active, v, "task-derived value survives export and import")

	v, err = now.SkillValue("B", "ct", "Notfall")
	require.NoError(t, err)
	assert.Equal(t, Passive, v, "explicit passive override survives too")
}

func TestParseImportMode(t *testing.T) {
	m, err := ParseImportMode("")
	require.NoError(t, err)
	assert.Equal(t, ImportReplace, m)
	m, err = ParseImportMode("ADD_ONLY")
	require.NoError(t, err)
	assert.Equal(t, ImportAddOnly, m)
	_, err = ParseImportMode("overwrite")
	assert.Error(t, err)
}
