package linesearch

import (
	"errors"
	"fmt"
)

// ErrDuplicateID indicates two stored records share an id.
var ErrDuplicateID = errors.New("duplicate record id")

// ErrPartialCompletion indicates a record whose execution time, timestamp
// and status are not all set or all unset.
var ErrPartialCompletion = errors.New("partially completed record")

// ErrBadQuery indicates a stored query over MaxQueryBytes.
var ErrBadQuery = errors.New("stored query too long")

// ErrBadStatus indicates a status outside unset, found and not-found.
var ErrBadStatus = errors.New("bad record status")

// RecordProblem is one invariant violation found by VerifyRecords.
type RecordProblem struct {
	Index int // position in append order
	ID    string
	Err   error
}

func (p RecordProblem) Error() string {
	return fmt.Sprintf("record %d (%s): %v", p.Index, p.ID, p.Err)
}

func (p RecordProblem) Unwrap() error { return p.Err }

// VerifyRecords checks records read back from a store against the Log
// invariants and returns every violation found, in order.
func VerifyRecords(recs []LogRecord) []RecordProblem {
	var problems []RecordProblem
	seen := make(map[string]int, len(recs))

	for i, r := range recs {
		report := func(err error) {
			problems = append(problems, RecordProblem{Index: i, ID: r.ID, Err: err})
		}

		if r.ID == "" {
			report(fmt.Errorf("%w: empty id", ErrInvalidArgument))
		} else if first, dup := seen[r.ID]; dup {
			report(fmt.Errorf("%w: first seen at record %d", ErrDuplicateID, first))
		} else {
			seen[r.ID] = i
		}

		if len(r.Query) > MaxQueryBytes {
			report(fmt.Errorf("%w: %d bytes", ErrBadQuery, len(r.Query)))
		}

		switch r.Status {
		case StatusUnset, StatusFound, StatusNotFound:
		default:
			report(fmt.Errorf("%w: %q", ErrBadStatus, r.Status))
		}

		set := 0
		for _, ok := range []bool{r.ExecutionTime != nil, r.Timestamp != nil, r.Status != StatusUnset} {
			if ok {
				set++
			}
		}
		if set != 0 && set != 3 {
			report(ErrPartialCompletion)
		}
		if r.ExecutionTime != nil && *r.ExecutionTime < 0 {
			report(fmt.Errorf("%w: negative execution time", ErrInvalidArgument))
		}
	}
	return problems
}

// VerifyStore reads every record from s and verifies it. The returned error
// joins all problems; it is nil for a consistent store.
func VerifyStore(s Store) error {
	recs, err := s.ListAll()
	if err != nil {
		return err
	}
	problems := VerifyRecords(recs)
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}
