package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/testportal/internal/apperr"
)

// Submission maps question id to the chosen answer id.
type Submission map[int64]int64

// FlexibleID accepts an identifier sent either as a JSON string or a number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	if f == nil {
		return fmt.Errorf("FlexibleID: nil receiver")
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*f = FlexibleID(strings.TrimSpace(s))
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		*f = FlexibleID(num.String())
		return nil
	}

	return fmt.Errorf("FlexibleID: expected string or number, got %s", string(data))
}

func (f FlexibleID) String() string { return string(f) }

// Int64 parses the identifier; empty or non-numeric values are rejected.
func (f FlexibleID) Int64() (int64, error) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	return strconv.ParseInt(s, 10, 64)
}

// ParseSubmission converts the wire mapping into a typed Submission and
// returns the string form kept for audit alongside the stored result.
// Answer values that are not ids (null, empty, junk) are left out of the
// Submission and so score as wrong. Question keys must be numeric and must
// not name the same question twice ("1" and "01").
func ParseSubmission(raw map[string]FlexibleID) (Submission, map[string]string, error) {
	sub := make(Submission, len(raw))
	audit := make(map[string]string, len(raw))
	seen := make(map[int64]string, len(raw))
	for k, v := range raw {
		qid, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, nil, apperr.Newf(apperr.Validation, "invalid question id %q", k)
		}
		if prev, dup := seen[qid]; dup {
			return nil, nil, apperr.Newf(apperr.Validation, "question %d answered twice (%q and %q)", qid, prev, k)
		}
		seen[qid] = k
		audit[k] = v.String()
		if aid, err := v.Int64(); err == nil {
			sub[qid] = aid
		}
	}
	return sub, audit, nil
}
