package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRecord is matched by every ValidationError.
var ErrInvalidRecord = errors.New("invalid record")

var validate = validator.New()

// Record is one labelled error report.
type Record struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Callstack string `json:"callstack"`
	Category  string `json:"category"`
}

// wireRecord mirrors Record with pointer fields so that missing and null
// fields can be told apart from empty strings.
type wireRecord struct {
	ID        *recordID `json:"id" validate:"required"`
	Text      *string   `json:"text" validate:"required"`
	Callstack *string   `json:"callstack" validate:"required"`
	Category  *string   `json:"category" validate:"required"`
}

// recordID accepts any JSON number with an integral value inside the int64
// range, so 7, 7.0 and 7e0 are the same id. Strings are rejected.
type recordID int64

func (id *recordID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if len(data) == 0 || data[0] == '"' {
		return fmt.Errorf("id must be a number, got %s", data)
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number: %w", err)
	}
	if v, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = recordID(v)
		return nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.Trunc(f) != f || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("id %s is not an int64 integer", n)
	}
	*id = recordID(f)
	return nil
}

// ValidationError reports a corpus line that does not hold a valid record.
type ValidationError struct {
	Line int
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d: %v: %v", e.Line, ErrInvalidRecord, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRecord }

// ParseRecord decodes and validates one NDJSON line. Unknown fields are ignored.
func ParseRecord(line []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	if err := validate.Struct(w); err != nil {
		return Record{}, describe(err)
	}
	return Record{
		ID:        int64(*w.ID),
		Text:      *w.Text,
		Callstack: *w.Callstack,
		Category:  *w.Category,
	}, nil
}

func describe(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New(strings.Join(problems, ", "))
}
