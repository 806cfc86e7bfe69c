package admin

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sabiprep/sabiprep/internal/audit"
	"github.com/sabiprep/sabiprep/internal/question"
)

// MaxImportRows bounds one CSV import.
const MaxImportRows = 5000

var requiredColumns = []string{
	"subject_id", "topic_id", "question_text",
	"option_a", "option_b", "option_c", "option_d", "correct_answer",
}

// RowError is a rejected CSV row. Row counts data rows from 1, not
// counting the header.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport summarizes a CSV import.
type ImportReport struct {
	ImportID string     `json:"import_id"`
	Total    int        `json:"total"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors"`
}

// Import reads questions from CSV with a header row. Each valid row is
// stored as its own question; invalid rows are reported and skipped. A
// malformed file fails the whole import.
func (s *Questions) Import(ctx context.Context, adminID string, r io.Reader) (*ImportReport, error) {
	rep := &ImportReport{ImportID: uuid.NewString(), Errors: []RowError{}}
	if err := s.recordImport(ctx, adminID, audit.ActionImportStart, rep.ImportID, nil); err != nil {
		return nil, err
	}

	err := s.importRows(ctx, r, rep)
	if err != nil {
		s.logger.Warn("question import failed", "import_id", rep.ImportID, "error", err)
		if aerr := s.recordImport(ctx, adminID, audit.ActionImportFailed, rep.ImportID, map[string]any{
			"error":    err.Error(),
			"imported": rep.Imported,
		}); aerr != nil {
			return nil, errors.Join(err, aerr)
		}
		return nil, err
	}

	if err := s.recordImport(ctx, adminID, audit.ActionImportComplete, rep.ImportID, map[string]any{
		"total":    rep.Total,
		"imported": rep.Imported,
		"failed":   rep.Failed,
	}); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Questions) importRows(ctx context.Context, r io.Reader, rep *ImportReport) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: empty file", ErrInvalidRequest)
	}
	if err != nil {
		return fmt.Errorf("%w: read header: %v", ErrInvalidRequest, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}

	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return fmt.Errorf("%w: line %d: %v", ErrInvalidRequest, perr.Line, perr.Err)
			}
			return fmt.Errorf("read csv: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		if rep.Total == MaxImportRows {
			return fmt.Errorf("%w: more than %d rows", ErrInvalidRequest, MaxImportRows)
		}
		rep.Total++

		q, err := rowQuestion(rec, cols)
		if err == nil {
			err = q.Validate()
		}
		if err == nil {
			err = s.repo.CreateQuestion(ctx, q)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rep.Failed++
			rep.Errors = append(rep.Errors, RowError{Row: row, Error: err.Error()})
			continue
		}
		rep.Imported++
	}
}

func rowQuestion(rec []string, cols map[string]int) (*question.Question, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	opt := func(name string) *string {
		if v := get(name); v != "" {
			return &v
		}
		return nil
	}

	q := &question.Question{
		SubjectID:   get("subject_id"),
		TopicID:     get("topic_id"),
		Text:        get("question_text"),
		Passage:     opt("passage"),
		PassageID:   opt("passage_id"),
		ImageURL:    opt("question_image_url"),
		OptionA:     get("option_a"),
		OptionB:     get("option_b"),
		OptionC:     get("option_c"),
		OptionD:     get("option_d"),
		OptionE:     opt("option_e"),
		Explanation: opt("explanation"),
		Hints: question.Hints{
			Level1: opt("hint1"),
			Level2: opt("hint2"),
			Level3: opt("hint3"),
			Legacy: opt("hint"),
		},
		Solution:   opt("solution"),
		Difficulty: get("difficulty"),
		ExamType:   get("exam_type"),
		Status:     question.Status(strings.ToLower(get("status"))),
	}
	if q.Status == "" {
		q.Status = question.StatusDraft
	}
	if raw := get("correct_answer"); raw != "" {
		o, ok := question.ParseOption(raw)
		if !ok {
			return nil, fmt.Errorf("%w: correct_answer %q is not an option letter", question.ErrInvalid, raw)
		}
		q.CorrectAnswer = o
	}
	if raw := get("exam_year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: exam_year %q is not a number", question.ErrInvalid, raw)
		}
		q.ExamYear = &y
	}
	return q, nil
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (s *Questions) recordImport(ctx context.Context, adminID string, action audit.Action, importID string, details map[string]any) error {
	err := s.audit.Record(ctx, audit.Entry{
		AdminID:    adminID,
		Action:     action,
		EntityType: audit.EntityImport,
		EntityID:   importID,
		Details:    details,
	})
	if err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}
