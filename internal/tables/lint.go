package tables

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/ppiankov/archetype/internal/model"
)

// Issue is a non-fatal problem found in a tables document. Entries with
// issues still load; the extractor that reaches them records a fault.
type Issue struct {
	Where   string `json:"where"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Where + ": " + i.Message
}

// minKeywordRunes is the shortest keyword that does not match inside
// unrelated words too often
const minKeywordRunes = 4

// Lint reports entry-level problems: unknown or conflicting poles, empty
// patterns, duplicate labels and noisy keywords.
func (t *Tables) Lint() []Issue {
	var issues []Issue
	add := func(where, format string, args ...interface{}) {
		issues = append(issues, Issue{Where: where, Message: fmt.Sprintf(format, args...)})
	}

	for _, c := range []Category{CategoryEra, CategoryCulture, CategoryStatus} {
		seen := make(map[string]string)
		for i, e := range t.entries(c) {
			where := fmt.Sprintf("%s[%d] %q", c, i, e.Label)
			if Fold(e.Label) == "" {
				add(where, "empty label")
			}
			for _, label := range append([]string{e.Label}, e.Aliases...) {
				key := Fold(label)
				if key == "" {
					continue
				}
				if owner, dup := seen[key]; dup && owner != e.Label {
					add(where, "label %q already used by %q", label, owner)
				}
				seen[key] = e.Label
			}
			if len(e.Poles) == 0 {
				add(where, "names no dominant pole")
			}
			lintPoles(where, e.Poles, add)
		}
	}

	for i, r := range t.Ranges {
		where := fmt.Sprintf("birth_year_ranges[%d] %d..%d", i, r.Start, r.End)
		if len(r.Deltas) == 0 {
			add(where, "has no deltas")
		}
		names := make([]string, 0, len(r.Deltas))
		for name := range r.Deltas {
			names = append(names, name)
		}
		sort.Strings(names)
		lintPoles(where, names, add)
	}

	for _, p := range model.AllPoles() {
		where := "lexicons." + p.String()
		kws := t.keywords[p]
		if len(kws) == 0 {
			add(where, "is empty")
		}
		for _, k := range kws {
			if utf8.RuneCountInString(k) < minKeywordRunes {
				add(where, "keyword %q is shorter than %d characters", k, minKeywordRunes)
			}
			for _, other := range model.AllPoles() {
				if other == p {
					continue
				}
				for _, ok := range t.keywords[other] {
					if ok == k {
						add(where, "keyword %q also listed under %s", k, other)
					}
				}
			}
		}
	}

	return issues
}

func lintPoles(where string, names []string, add func(string, string, ...interface{})) {
	var axes [model.AxisCount]int
	for _, name := range names {
		pole, err := model.ParsePole(name)
		if err != nil {
			add(where, "unknown pole %q", name)
			continue
		}
		axes[pole.Axis()]++
	}
	for _, a := range model.AllAxes() {
		if axes[a] > 1 {
			add(where, "names more than one pole on the %s axis", a)
		}
	}
}
