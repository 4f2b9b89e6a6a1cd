package roster

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ImportMode controls how an imported skill matrix combines with the
// existing roster.
type ImportMode string

const (
	ImportReplace ImportMode = "replace"
	ImportMerge   ImportMode = "merge"
	ImportAddOnly ImportMode = "add_only"
)

func ParseImportMode(raw string) (ImportMode, error) {
	switch m := ImportMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ImportReplace, nil
	case ImportReplace, ImportMerge, ImportAddOnly:
		return m, nil
	}
	return "", fmt.Errorf("unknown import mode %q", raw)
}

// ImportStats counts what an import did to the roster.
type ImportStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// SkillMatrix maps worker name to modality to skill value.
type SkillMatrix map[string]map[string]map[string]SkillValue

const bom = "\ufeff"

// ParseSkillCSV reads a "Worker,<skill>_<modality>,..." sheet. Columns are
// matched against the known modalities by suffix so skill names may contain
// underscores. Unknown columns and invalid cells fail the whole import. A
// blank cell sets no override, so the worker keeps the value of their task;
// "0" is an explicit passive override.
func ParseSkillCSV(r io.Reader, modalities, skills []string) (SkillMatrix, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, []byte(bom)) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	knownSkill := make(map[string]bool, len(skills))
	for _, s := range skills {
		knownSkill[s] = true
	}

	workerCol := -1
	cols := make([]skillColumn, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "Worker" {
			workerCol = i
			continue
		}
		col, ok := splitColumn(name, modalities)
		if !ok || !knownSkill[col.skill] {
			return nil, fmt.Errorf("%w: column %q is not <skill>_<modality>", ErrInvalidEntry, name)
		}
		cols[i] = col
	}
	if workerCol < 0 {
		return nil, fmt.Errorf("%w: missing Worker column", ErrInvalidEntry)
	}

	out := SkillMatrix{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		id, _ := CanonicalName(rec[workerCol])
		if id == "" {
			continue
		}
		mods := out[id]
		if mods == nil {
			mods = make(map[string]map[string]SkillValue)
			out[id] = mods
		}
		for i, cell := range rec {
			if i == workerCol || cols[i].skill == "" || strings.TrimSpace(cell) == "" {
				continue
			}
			v, err := ParseSkillValue(cell)
			if err != nil {
				return nil, fmt.Errorf("worker %s column %s: %w", id, header[i], err)
			}
			if mods[cols[i].modality] == nil {
				mods[cols[i].modality] = make(map[string]SkillValue)
			}
			mods[cols[i].modality][cols[i].skill] = v
		}
	}
	return out, nil
}

type skillColumn struct{ skill, modality string }

func splitColumn(name string, modalities []string) (skillColumn, bool) {
	for _, mod := range modalities {
		suffix := "_" + mod
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return skillColumn{skill: strings.TrimSuffix(name, suffix), modality: mod}, true
		}
	}
	return skillColumn{}, false
}

// ApplySkills folds an imported matrix into doc. Replace drops workers that
// are not in the sheet, merge overwrites the skill overrides of listed
// workers, add_only leaves existing workers untouched.
func ApplySkills(doc Document, matrix SkillMatrix, mode ImportMode) (Document, ImportStats) {
	var stats ImportStats
	existing := make(map[string]int, len(doc.Workers))
	for i, w := range doc.Workers {
		id, _ := CanonicalName(firstNonEmpty(w.Name, w.ID))
		existing[id] = i
	}

	names := make([]string, 0, len(matrix))
	for name := range matrix {
		names = append(names, name)
	}
	sort.Strings(names)

	var out Document
	if mode != ImportReplace {
		out.Workers = append(out.Workers, doc.Workers...)
	}
	for _, name := range names {
		idx, found := existing[name]
		switch {
		case found && mode == ImportAddOnly:
			stats.Skipped++
		case found && mode == ImportMerge:
			out.Workers[idx].Skills = matrix[name]
			stats.Updated++
		case found:
			w := doc.Workers[idx]
			w.Skills = matrix[name]
			out.Workers = append(out.Workers, w)
			stats.Updated++
		default:
			out.Workers = append(out.Workers, Worker{ID: name, Name: name, Skills: matrix[name]})
			stats.Added++
		}
	}
	return out, stats
}

// WriteSkillCSV exports the per-modality overrides of every worker in the
// same layout ParseSkillCSV reads. Skills without an override are left blank.
func WriteSkillCSV(w io.Writer, doc Document, modalities, skills []string) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := []string{"Worker"}
	for _, mod := range modalities {
		for _, s := range skills {
			header = append(header, s+"_"+mod)
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, wk := range doc.Workers {
		row := []string{firstNonEmpty(wk.Name, wk.ID)}
		for _, mod := range modalities {
			for _, s := range skills {
				cell := ""
				if v, ok := wk.Skills[mod][s]; ok {
					cell = v.String()
				}
				row = append(row, cell)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
