package store

import (
	"database/sql/driver"
	"fmt"

	"github.com/hyperengineering/recommender/internal/embedding"
	"modernc.org/sqlite"
)

// vec_sum(blob) is the in-store form of embedding.Sum. NULL rows are
// skipped and a group with no non-NULL rows yields NULL.
func init() {
	sqlite.MustRegisterFunction("vec_sum", &sqlite.FunctionImpl{
		NArgs:         1,
		Deterministic: true,
		MakeAggregate: func(sqlite.FunctionContext) (sqlite.AggregateFunction, error) {
			return &vecSum{}, nil
		},
	})
}

type vecSum struct {
	acc embedding.Accumulator
}

func decodeArg(args []driver.Value) ([]float64, bool, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, false, nil
	case []byte:
		vec, err := embedding.Unpack(v)
		if err != nil {
			return nil, false, err
		}
		return vec, true, nil
	default:
		return nil, false, fmt.Errorf("vec_sum: expected blob, got %T", args[0])
	}
}

func (s *vecSum) Step(_ *sqlite.FunctionContext, args []driver.Value) error {
	vec, ok, err := decodeArg(args)
	if ok {
		s.acc.Add(vec)
	}
	return err
}

func (s *vecSum) WindowInverse(_ *sqlite.FunctionContext, args []driver.Value) error {
	vec, ok, err := decodeArg(args)
	if ok {
		s.acc.Remove(vec)
	}
	return err
}

func (s *vecSum) WindowValue(*sqlite.FunctionContext) (driver.Value, error) {
	v := s.acc.Value()
	if v == nil {
		return nil, nil
	}
	return embedding.Pack(v), nil
}

func (s *vecSum) Final(*sqlite.FunctionContext) {}
