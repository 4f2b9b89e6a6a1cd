package roster

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Entry is one block of a worker's day.
type Entry struct {
	Task string `json:"task"`
	// Modality is empty on gap entries that block every modality.
	Modality string `json:"modality,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
	Start    Clock  `json:"start"`
	End      Clock  `json:"end"`
}

// Worker is one de-duplicated staff member with their day plan and skill
// overrides.
type Worker struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Abbrev string `json:"abbrev,omitempty"`

	// Modifier scales the weight of the worker's assignments. Nil means 1.0;
	// an explicit 0 makes their assignments free.
	Modifier *float64 `json:"modifier,omitempty"`
	Entries  []Entry  `json:"entries"`

	// Skills holds per-modality overrides; DefaultSkills apply to every
	// modality without its own override.
	Skills        map[string]map[string]SkillValue `json:"skills,omitempty"`
	DefaultSkills map[string]SkillValue            `json:"default_skills,omitempty"`
}

// ModifierOrDefault returns the workload modifier, 1.0 when none is set.
func (w Worker) ModifierOrDefault() float64 {
	if w.Modifier == nil {
		return 1.0
	}
	return *w.Modifier
}

// TaskDef describes an activity a roster entry can reference. Kind is the
// authoritative shift/gap tag for every entry that uses the task.
type TaskDef struct {
	Kind       Kind                  `yaml:"kind" json:"kind"`
	Modalities []string              `yaml:"modalities" json:"modalities,omitempty"`
	Skills     map[string]SkillValue `yaml:"skills" json:"skills,omitempty"`
}

// Document is the ingestion format accepted from uploads and the roster feed.
type Document struct {
	Workers []Worker `json:"workers"`
}

var abbrevSuffix = regexp.MustCompile(`\s*\(([^()]*)\)\s*$`)

// CanonicalName collapses whitespace and strips a trailing "(ABBR)" code so
// "Dr. Müller (CT1)" and "Dr.  Müller (MR2)" resolve to the same worker.
func CanonicalName(raw string) (id string, abbrev string) {
	name := strings.Join(strings.Fields(raw), " ")
	if m := abbrevSuffix.FindStringSubmatchIndex(name); m != nil {
		abbrev = strings.TrimSpace(name[m[2]:m[3]])
		name = strings.TrimSpace(name[:m[0]])
	}
	return name, abbrev
}

// normalize resolves names, kinds and modalities of a single worker against
// the task catalog. Entries that reference a configured task take the task's
// kind; unknown tasks must carry an explicit kind.
func normalize(w Worker, tasks map[string]TaskDef) (Worker, error) {
	raw := w.Name
	if raw == "" {
		raw = w.ID
	}
	id, abbrev := CanonicalName(raw)
	if id == "" {
		return Worker{}, fmt.Errorf("%w: worker without name", ErrInvalidEntry)
	}
	out := Worker{
		ID:     id,
		Name:   id,
		Abbrev: abbrev,
	}
	if w.Abbrev != "" {
		out.Abbrev = w.Abbrev
	}
	if m := w.Modifier; m != nil {
		if math.IsNaN(*m) || math.IsInf(*m, 0) || *m < 0 {
			return Worker{}, fmt.Errorf("%w: worker %s: modifier %v", ErrInvalidEntry, id, *m)
		}
		v := *m
		out.Modifier = &v
	}

	for _, e := range w.Entries {
		def, known := tasks[e.Task]
		kind := e.Kind
		if known {
			kind = def.Kind
		}
		if kind == "" {
			return Worker{}, fmt.Errorf("%w: worker %s: task %q has no kind", ErrInvalidEntry, id, e.Task)
		}
		e.Kind = kind

		switch {
		case e.Modality != "":
			out.Entries = append(out.Entries, e)
		case known && len(def.Modalities) > 0:
			for _, mod := range def.Modalities {
				ex := e
				ex.Modality = mod
				out.Entries = append(out.Entries, ex)
			}
		case kind == KindGap:
			out.Entries = append(out.Entries, e)
		default:
			return Worker{}, fmt.Errorf("%w: worker %s: shift %q has no modality", ErrInvalidEntry, id, e.Task)
		}
	}

	if len(w.Skills) > 0 {
		out.Skills = make(map[string]map[string]SkillValue, len(w.Skills))
		for mod, skills := range w.Skills {
			m := make(map[string]SkillValue, len(skills))
			for s, v := range skills {
				if !v.Valid() {
					return Worker{}, fmt.Errorf("%w: worker %s %s/%s", ErrInvalidSkillValue, id, mod, s)
				}
				m[s] = v
			}
			out.Skills[mod] = m
		}
	}
	if len(w.DefaultSkills) > 0 {
		out.DefaultSkills = make(map[string]SkillValue, len(w.DefaultSkills))
		for s, v := range w.DefaultSkills {
			if !v.Valid() {
				return Worker{}, fmt.Errorf("%w: worker %s default/%s", ErrInvalidSkillValue, id, s)
			}
			out.DefaultSkills[s] = v
		}
	}
	return out, nil
}

// merge folds a duplicate record of the same person into w. Entries are
// appended; explicit skill overrides from the later record win.
func merge(w, dup Worker) Worker {
	w.Entries = append(w.Entries, dup.Entries...)
	if w.Abbrev == "" {
		w.Abbrev = dup.Abbrev
	}
	if dup.Modifier != nil {
		w.Modifier = dup.Modifier
	}
	for mod, skills := range dup.Skills {
		if w.Skills == nil {
			w.Skills = make(map[string]map[string]SkillValue)
		}
		if w.Skills[mod] == nil {
			w.Skills[mod] = make(map[string]SkillValue)
		}
		for s, v := range skills {
			w.Skills[mod][s] = v
		}
	}
	for s, v := range dup.DefaultSkills {
		if w.DefaultSkills == nil {
			w.DefaultSkills = make(map[string]SkillValue)
		}
		w.DefaultSkills[s] = v
	}
	return w
}
