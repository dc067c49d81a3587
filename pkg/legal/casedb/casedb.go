// Package casedb is a small reference set of Australian decisions used to
// seed precedent analysis. Entries are simplified teaching summaries and are
// not citable authority.
package casedb

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed cases.yaml
var defaultCases []byte

type Case struct {
	CaseName          string   `yaml:"case_name"`
	Citation          string   `yaml:"citation"`
	Year              int      `yaml:"year"`
	Jurisdiction      string   `yaml:"jurisdiction"`
	LegalArea         string   `yaml:"legal_area"`
	SubCategories     []string `yaml:"sub_categories"`
	KeyFacts          string   `yaml:"key_facts"`
	KeyHolding        string   `yaml:"key_holding"`
	Outcome           string   `yaml:"outcome"`
	RelevanceKeywords []string `yaml:"relevance_keywords"`
}

// Lookup is what precedent analysis needs from a case source.
type Lookup interface {
	BySubCategory(area, subCategory string) []Case
	SearchKeywords(keywords []string, area string) []Case
}

type DB struct {
	cases []Case
}

var _ Lookup = (*DB)(nil)

func Parse(raw []byte) (*DB, error) {
	var doc struct {
		Cases []Case `yaml:"cases"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse case database: %w", err)
	}
	return &DB{cases: doc.Cases}, nil
}

func Default() *DB {
	db, err := Parse(defaultCases)
	if err != nil {
		panic(err)
	}
	return db
}

func (db *DB) Len() int { return len(db.cases) }

func (db *DB) ByArea(area string) []Case {
	var out []Case
	for _, c := range db.cases {
		if c.LegalArea == area {
			out = append(out, c)
		}
	}
	return out
}

func (db *DB) BySubCategory(area, subCategory string) []Case {
	var out []Case
	for _, c := range db.cases {
		if c.LegalArea != area {
			continue
		}
		for _, sc := range c.SubCategories {
			if sc == subCategory {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// SearchKeywords ranks cases by how many keywords appear in their keyword
// list or their facts and holding. An empty area searches every area.
func (db *DB) SearchKeywords(keywords []string, area string) []Case {
	type hit struct {
		score int
		c     Case
	}
	var hits []hit
	for _, c := range db.cases {
		if area != "" && c.LegalArea != area {
			continue
		}
		tags := make(map[string]bool, len(c.RelevanceKeywords))
		for _, k := range c.RelevanceKeywords {
			tags[strings.ToLower(k)] = true
		}
		text := strings.ToLower(c.KeyFacts + " " + c.KeyHolding)

		score := 0
		for _, kw := range keywords {
			kw = strings.ToLower(kw)
			if kw == "" {
				continue
			}
			if tags[kw] || strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{score, c})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]Case, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

func (db *DB) ByName(name string) (Case, bool) {
	for _, c := range db.cases {
		if strings.EqualFold(c.CaseName, name) {
			return c, true
		}
	}
	return Case{}, false
}
