package roster

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func modifier(v float64) *float64 { return &v }

func clock(t *testing.T, raw string) Clock {
	t.Helper()
	c, err := ParseClock(raw)
	require.NoError(t, err)
	return c
}

func testTasks() map[string]TaskDef {
	return map[string]TaskDef{
		"CT Früh": {
			Kind:       KindShift,
			Modalities: []string{"ct"},
			Skills:     map[string]SkillValue{"Notfall": Active, "Herz": Passive},
		},
		"MR Spät": {
			Kind:       KindShift,
			Modalities: []string{"mr"},
			Skills:     map[string]SkillValue{"Notfall": Weighted},
		},
		"Board": {Kind: KindGap},
		"Herz CT": {
			Kind:       KindShift,
			Modalities: []string{"ct"},
			Skills:     map[string]SkillValue{"Herz": Active, "Msk": Excluded},
		},
	}
}

func TestParseSkillValue(t *testing.T) {
	tests := []struct {
		raw     string
		want    SkillValue
		wantErr bool
	}{
		{"", Passive, false},
		{"0", Passive, false},
		{"1", Active, false},
		{"-1", Excluded, false},
		{"w", Weighted, false},
		{"W", Weighted, false},
		{"2", Weighted, false},
		{"3", Passive, true},
		{"yes", Passive, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSkillValue(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSkillValue) {
					t.Fatalf("expected ErrInvalidSkillValue, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkillValueKeepsWeightedMarker(t *testing.T) {
	data, err := json.Marshal(map[string]SkillValue{"a": Weighted, "b": Excluded})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"w","b":-1}`, string(data))

	var back map[string]SkillValue
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Weighted, back["a"])
	assert.Equal(t, Excluded, back["b"])

	out, err := yaml.Marshal(map[string]SkillValue{"a": Weighted})
	require.NoError(t, err)
	var fromYAML map[string]SkillValue
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	assert.Equal(t, Weighted, fromYAML["a"])

	_, err = json.Marshal(SkillValue(7))
	assert.Error(t, err)
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		raw, id, abbrev string
	}{
		{"Dr. Müller (CT1)", "Dr. Müller", "CT1"},
		{"  Dr.   Müller  (MR2) ", "Dr. Müller", "MR2"},
		{"Schmidt", "Schmidt", ""},
	}
	for _, tt := range tests {
		id, abbrev := CanonicalName(tt.raw)
		if id != tt.id || abbrev != tt.abbrev {
			t.Errorf("CanonicalName(%q) = %q, %q; want %q, %q", tt.raw, id, abbrev, tt.id, tt.abbrev)
		}
	}
}

func TestSpanOvernight(t *testing.T) {
	start, end := Clock(22*60), Clock(6*60)

	covered, elapsed, length := span(start, end, Clock(23*60))
	assert.True(t, covered)
	assert.Equal(t, 60, elapsed)
	assert.Equal(t, 8*60, length)

	covered, elapsed, _ = span(start, end, Clock(2*60))
	assert.True(t, covered)
	assert.Equal(t, 4*60, elapsed)

	covered, _, _ = span(start, end, Clock(7*60))
	assert.False(t, covered)

	covered, _, _ = span(Clock(8*60), Clock(16*60), Clock(16*60))
	assert.False(t, covered, "end is exclusive")
}

func TestBuildMergesDuplicates(t *testing.T) {
	doc := Document{Workers: []Worker{
		{Name: "Dr. Müller (CT1)", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}}},
		{Name: "Dr.  Müller (MR2)", Modifier: modifier(0.5), Entries: []Entry{{Task: "MR Spät", Start: clock(t, "15:00"), End: clock(t, "22:00")}}},
	}}
	ix, err := Build(doc, testTasks())
	require.NoError(t, err)
	require.Equal(t, 1, ix.Len())

	w, ok := ix.Worker("Dr. Müller")
	require.True(t, ok)
	assert.Equal(t, "CT1", w.Abbrev)
	assert.Equal(t, 0.5, w.ModifierOrDefault())
	assert.Len(t, w.Entries, 2)
}

func TestBuildRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		w    Worker
	}{
		{"no name", Worker{}},
		{"unknown task without kind", Worker{Name: "A", Entries: []Entry{{Task: "Mystery", Modality: "ct"}}}},
		{"shift without modality", Worker{Name: "A", Entries: []Entry{{Task: "Ad hoc", Kind: KindShift}}}},
		{"negative modifier", Worker{Name: "A", Modifier: modifier(-1)}},
		{"bad skill", Worker{Name: "A", DefaultSkills: map[string]SkillValue{"Herz": SkillValue(5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(Document{Workers: []Worker{tt.w}}, testTasks())
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOnShiftHonoursGaps(t *testing.T) {
	doc := Document{Workers: []Worker{
		{Name: "B", Entries: []Entry{
			{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")},
			{Task: "Board", Start: clock(t, "12:00"), End: clock(t, "13:00")},
		}},
		{Name: "A", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}}},
		{Name: "N", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "22:00"), End: clock(t, "06:00")}}},
	}}
	ix, err := Build(doc, testTasks())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, ix.At(at(10, 0)).OnShift("ct"))
	assert.Equal(t, []string{"A"}, ix.At(at(12, 30)).OnShift("ct"))
	assert.Equal(t, []string{"N"}, ix.At(at(3, 0)).OnShift("ct"))
	assert.Empty(t, ix.At(at(10, 0)).OnShift("mr"))
}

func TestSkillValuePrecedence(t *testing.T) {
	doc := Document{Workers: []Worker{
		{
			Name: "A",
			Entries: []Entry{
				{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")},
				{Task: "Herz CT", Start: clock(t, "07:00"), End: clock(t, "15:00")},
			},
			Skills:        map[string]map[string]SkillValue{"ct": {"Notfall": Weighted}},
			DefaultSkills: map[string]SkillValue{"Notfall": Excluded, "Chest": Active},
		},
	}}
	ix, err := Build(doc, testTasks())
	require.NoError(t, err)
	in := ix.At(at(9, 0))

	tests := []struct {
		skill string
		want  SkillValue
	}{
		{"Notfall", Weighted}, // per-modality override beats default
		{"Chest", Active},     // default override
		{"Herz", Active},      // highest covering task value
		{"Msk", Excluded},     // -1 from any covering task wins
		{"Mamma", Passive},    // nothing set
	}
	for _, tt := range tests {
		got, err := in.SkillValue("A", "ct", tt.skill)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.skill)
	}

	_, err = in.SkillValue("ghost", "ct", "Herz")
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestHoursWorked(t *testing.T) {
	doc := Document{Workers: []Worker{
		{Name: "A", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}}},
	}}
	ix, err := Build(doc, testTasks())
	require.NoError(t, err)

	assert.InDelta(t, 2.5, ix.At(at(9, 30)).HoursWorked("A", "ct"), 1e-9)
	assert.Zero(t, ix.At(at(16, 0)).HoursWorked("A", "ct"))
	assert.Equal(t, 1.0, ix.At(at(9, 30)).Modifier("A"))
}

func TestModifierZeroIsKept(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"workers":[
		{"name":"Unset","entries":[]},
		{"name":"Zero","modifier":0,"entries":[]},
		{"name":"Half","modifier":0.5,"entries":[]}
	]}`), &doc))
	ix, err := Build(doc, testTasks())
	require.NoError(t, err)

	now := ix.At(at(9, 0))
	assert.Equal(t, 1.0, now.Modifier("Unset"))
	assert.Equal(t, 0.0, now.Modifier("Zero"), "explicit zero is not replaced by the default")
	assert.Equal(t, 0.5, now.Modifier("Half"))
	assert.Equal(t, 1.0, now.Modifier("nobody"))
}

func TestRegistryCopyOnWrite(t *testing.T) {
	tasks := testTasks()
	reg := NewRegistry(Empty(tasks))
	before := reg.Current()

	stored, err := reg.Upsert(Worker{Name: "Dr. Weber (XR)", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}}})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Weber", stored.ID)
	assert.Equal(t, 0, before.Len(), "old snapshot must not change")
	assert.Equal(t, 1, reg.Current().Len())

	same, err := Build(reg.Current().Document(), tasks)
	require.NoError(t, err)
	assert.Equal(t, reg.Current().Fingerprint(), same.Fingerprint())
	assert.False(t, reg.Replace(same), "identical content is not a change")

	require.NoError(t, reg.Remove("Dr. Weber"))
	assert.ErrorIs(t, reg.Remove("Dr. Weber"), ErrUnknownWorker)
	assert.True(t, reg.Replace(same))
}

func TestRegistryReplaceSeesTaskChanges(t *testing.T) {
	doc := Document{Workers: []Worker{
		{Name: "A", Entries: []Entry{{Task: "CT Früh", Start: clock(t, "07:00"), End: clock(t, "15:00")}}},
	}}
	ix, err := Build(doc, testTasks())
	require.NoError(t, err)
	reg := NewRegistry(ix)

	tasks := testTasks()
	tasks["CT Früh"] = TaskDef{
		Kind:       KindShift,
		Modalities: []string{"ct"},
		Skills:     map[string]SkillValue{"Notfall": Excluded},
	}
	next, err := Build(reg.Current().Document(), tasks)
	require.NoError(t, err)
	assert.NotEqual(t, ix.Fingerprint(), next.Fingerprint())
	require.True(t, reg.Replace(next), "same workers under new task skills is a change")

	v, err := reg.Current().At(at(9, 0)).SkillValue("A", "ct", "Notfall")
	require.NoError(t, err)
	assert.Equal(t, Excluded, v)
}
