package services

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed slot_tables.yaml
var defaultSlotTablesYAML []byte

// SlotScores are per-slot base scores.
type SlotScores struct {
	Morning   float64 `yaml:"morning"`
	Afternoon float64 `yaml:"afternoon"`
	Evening   float64 `yaml:"evening"`
}

type KeywordList struct {
	Score float64  `yaml:"score"`
	Words []string `yaml:"words"`
}

// SlotTables is the static, versioned configuration behind slot allocation.
type SlotTables struct {
	Version    int                   `yaml:"version"`
	Fallback   SlotScores            `yaml:"fallback"`
	Categories map[string]SlotScores `yaml:"categories"`
	Keywords   struct {
		Morning   KeywordList `yaml:"morning"`
		Afternoon KeywordList `yaml:"afternoon"`
		Evening   KeywordList `yaml:"evening"`
	} `yaml:"keywords"`
	Tourist struct {
		Categories   []string `yaml:"categories"`
		NamePatterns []string `yaml:"name_patterns"`
	} `yaml:"tourist"`
	Morning struct {
		StartHour         int     `yaml:"start_hour"`
		EndHour           int     `yaml:"end_hour"`
		TouristMultiplier float64 `yaml:"tourist_multiplier"`
		DefaultMultiplier float64 `yaml:"default_multiplier"`
	} `yaml:"morning"`
	Evening struct {
		KeywordBonuses  map[string]float64 `yaml:"keyword_bonuses"`
		LateCloseMinute int                `yaml:"late_close_minute"`
		LateCloseBonus  float64            `yaml:"late_close_bonus"`
	} `yaml:"evening"`
}

// DefaultSlotTables returns the embedded tables.
func DefaultSlotTables() (*SlotTables, error) {
	t, err := ParseSlotTables(defaultSlotTablesYAML)
	if err != nil {
		return nil, fmt.Errorf("default slot tables: %w", err)
	}
	return t, nil
}

// LoadSlotTables reads tables from path, or the embedded default when path is empty.
func LoadSlotTables(path string) (*SlotTables, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSlotTables()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load slot tables: read %q: %w", path, err)
	}
	t, err := ParseSlotTables(raw)
	if err != nil {
		return nil, fmt.Errorf("load slot tables %q: %w", path, err)
	}
	return t, nil
}

func ParseSlotTables(raw []byte) (*SlotTables, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var t SlotTables
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("parse slot tables: %w", err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// normalize lower-cases every lookup key so matching is case-insensitive.
func (t *SlotTables) normalize() {
	cats := make(map[string]SlotScores, len(t.Categories))
	for k, v := range t.Categories {
		cats[strings.ToLower(k)] = v
	}
	t.Categories = cats

	bonuses := make(map[string]float64, len(t.Evening.KeywordBonuses))
	for k, v := range t.Evening.KeywordBonuses {
		bonuses[strings.ToLower(k)] = v
	}
	t.Evening.KeywordBonuses = bonuses

	lower := func(xs []string) {
		for i := range xs {
			xs[i] = strings.ToLower(xs[i])
		}
	}
	lower(t.Keywords.Morning.Words)
	lower(t.Keywords.Afternoon.Words)
	lower(t.Keywords.Evening.Words)
	lower(t.Tourist.Categories)
	lower(t.Tourist.NamePatterns)
}

func (t *SlotTables) Validate() error {
	if t.Version < 1 {
		return fmt.Errorf("slot tables: version must be >= 1, got %d", t.Version)
	}
	if err := t.Fallback.validate("fallback"); err != nil {
		return err
	}
	for name, s := range t.Categories {
		if err := s.validate("categories." + name); err != nil {
			return err
		}
	}
	for name, kw := range map[string]KeywordList{
		"morning":   t.Keywords.Morning,
		"afternoon": t.Keywords.Afternoon,
		"evening":   t.Keywords.Evening,
	} {
		if kw.Score < 0 {
			return fmt.Errorf("slot tables: keywords.%s.score must be >= 0", name)
		}
	}
	m := t.Morning
	if m.StartHour < 0 || m.EndHour > 24 || m.StartHour >= m.EndHour {
		return fmt.Errorf("slot tables: morning window [%d,%d) is invalid", m.StartHour, m.EndHour)
	}
	if m.TouristMultiplier < 0 || m.DefaultMultiplier < 0 {
		return fmt.Errorf("slot tables: morning multipliers must be >= 0")
	}
	for k, v := range t.Evening.KeywordBonuses {
		if v < 0 {
			return fmt.Errorf("slot tables: evening bonus %q must be >= 0", k)
		}
	}
	if t.Evening.LateCloseBonus < 0 {
		return fmt.Errorf("slot tables: late_close_bonus must be >= 0")
	}
	return nil
}

func (s SlotScores) validate(field string) error {
	if s.Morning < 0 || s.Afternoon < 0 || s.Evening < 0 {
		return fmt.Errorf("slot tables: %s: scores must be >= 0", field)
	}
	return nil
}
