// Package i18n maps canonical enum tags to display strings.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dftm/dftm-calendar/internal/calendar"
	"github.com/dftm/dftm-calendar/internal/models"
)

//go:embed locales/*.yaml
var locales embed.FS

type Translator struct {
	tables   map[models.Language]map[string]string
	fallback models.Language
}

// New loads the built-in tables.
func New(fallback models.Language) (*Translator, error) {
	return Load(locales, "locales", fallback)
}

// Load reads one <lang>.yaml table per supported language from dir.
// Nested keys are flattened into dotted keys.
func Load(fsys fs.FS, dir string, fallback models.Language) (*Translator, error) {
	if !fallback.Valid() {
		return nil, fmt.Errorf("unsupported fallback language %q", fallback)
	}

	t := &Translator{
		tables:   make(map[models.Language]map[string]string, len(models.Languages)),
		fallback: fallback,
	}
	for _, lang := range models.Languages {
		data, err := fs.ReadFile(fsys, path.Join(dir, string(lang)+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("read %s table: %w", lang, err)
		}

		var raw map[string]any
		if err = yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s table: %w", lang, err)
		}

		table := make(map[string]string)
		flatten("", raw, table)
		t.tables[lang] = table
	}

	return t, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := v.(type) {
		case map[string]any:
			flatten(key, v, out)
		case nil:
		default:
			out[key] = fmt.Sprint(v)
		}
	}
}

// T returns the text for key in lang, then in the fallback
// language, and finally the key itself.
func (t *Translator) T(lang models.Language, key string) string {
	if s, ok := t.tables[lang][key]; ok {
		return s
	}
	if s, ok := t.tables[t.fallback][key]; ok {
		return s
	}
	return key
}

func (t *Translator) Fallback() models.Language {
	return t.fallback
}

func (t *Translator) StatusLabel(lang models.Language, s models.Status) string {
	return t.T(lang, "status."+string(s))
}

func (t *Translator) PriorityLabel(lang models.Language, p models.Priority) string {
	return t.T(lang, "priority."+string(p))
}

func (t *Translator) MonthName(lang models.Language, m time.Month) string {
	return t.T(lang, "calendar.months."+strings.ToLower(m.String()))
}

// Weekdays returns the column headers of the grid, Monday first.
func (t *Translator) Weekdays(lang models.Language, short bool) []string {
	group := "calendar.weekdays."
	if short {
		group = "calendar.weekdays_short."
	}

	out := make([]string, 0, len(calendar.WeekdayOrder))
	for _, w := range calendar.WeekdayOrder {
		out = append(out, t.T(lang, group+strings.ToLower(w.String())))
	}
	return out
}

// Labels is the lookup the front ends need to render enum tags.
type Labels struct {
	Statuses   map[models.Status]string   `json:"statuses"`
	Priorities map[models.Priority]string `json:"priorities"`
}

func (t *Translator) Labels(lang models.Language) Labels {
	l := Labels{
		Statuses:   make(map[models.Status]string, len(models.Statuses)),
		Priorities: make(map[models.Priority]string, len(models.Priorities)),
	}
	for _, s := range models.Statuses {
		l.Statuses[s] = t.StatusLabel(lang, s)
	}
	for _, p := range models.Priorities {
		l.Priorities[p] = t.PriorityLabel(lang, p)
	}
	return l
}
