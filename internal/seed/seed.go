// Package seed reads tests from YAML files and loads them into the catalog.
//
//	tests:
//	  - title: Math-1
//	    time_limit: 30
//	    questions:
//	      - text: "2 + 2 = ?"
//	        answers:
//	          - text: "4"
//	            correct: true
//	          - text: "5"
package seed

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mind-engage/testportal/internal/models"
)

const (
	DefaultTimeLimit = 60
	DefaultMaxScore  = 100
)

type File struct {
	Tests []TestDoc `yaml:"tests"`
}

type TestDoc struct {
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	TimeLimit   *int          `yaml:"time_limit"`
	MaxScore    *float64      `yaml:"max_score"`
	Active      *bool         `yaml:"active"`
	Questions   []QuestionDoc `yaml:"questions"`
}

type QuestionDoc struct {
	Text    string      `yaml:"text"`
	Answers []AnswerDoc `yaml:"answers"`
}

type AnswerDoc struct {
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct"`
}

// Model converts the document; only keys missing from the YAML get defaults.
func (d TestDoc) Model() models.Test {
	t := models.Test{
		Title:       d.Title,
		Description: d.Description,
		TimeLimit:   DefaultTimeLimit,
		MaxScore:    DefaultMaxScore,
		Active:      true,
	}
	if d.TimeLimit != nil {
		t.TimeLimit = *d.TimeLimit
	}
	if d.MaxScore != nil {
		t.MaxScore = *d.MaxScore
	}
	if d.Active != nil {
		t.Active = *d.Active
	}
	for i, q := range d.Questions {
		mq := models.Question{Text: q.Text, Order: i + 1}
		for _, a := range q.Answers {
			mq.Answers = append(mq.Answers, models.Answer{Text: a.Text, IsCorrect: a.Correct})
		}
		t.Questions = append(t.Questions, mq)
	}
	return t
}

// Decode parses and validates every test in r.
func Decode(r io.Reader) ([]models.Test, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	out := make([]models.Test, 0, len(f.Tests))
	for i, d := range f.Tests {
		t := d.Model()
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("seed: test %d (%q): %w", i+1, d.Title, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func DecodeFile(path string) ([]models.Test, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

type TestCreator interface {
	CreateTest(ctx context.Context, t models.Test) (models.Test, error)
}

// Import creates each test in its own transaction and stops at the first
// failure; tests created before it are kept.
func Import(ctx context.Context, c TestCreator, tests []models.Test) ([]models.Test, error) {
	created := make([]models.Test, 0, len(tests))
	for _, t := range tests {
		ct, err := c.CreateTest(ctx, t)
		if err != nil {
			return created, fmt.Errorf("seed: create %q: %w", t.Title, err)
		}
		created = append(created, ct)
	}
	return created, nil
}
