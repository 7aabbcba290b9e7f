// Package recordstore is a generic read/write/search interface over a remote
// record database addressed by model name and integer ids.
package recordstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// Store is the record database seen by the session coordinator. Every
// method may fail with a *RemoteError.
type Store interface {
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error)
	Write(ctx context.Context, model string, ids []int64, patch Record) error
	Create(ctx context.Context, model string, payload Record) (int64, error)
	Delete(ctx context.Context, model string, ids []int64) error
	Search(ctx context.Context, model string, domain Domain) ([]int64, error)
	SearchRead(ctx context.Context, model string, domain Domain, fields []string) ([]Record, error)
	SearchCount(ctx context.Context, model string, domain Domain) (int, error)
}

type RemoteError struct {
	Op    string
	Model string
	Err   error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("recordstore %s %s: %v", e.Op, e.Model, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func remote(op, model string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Model: model, Err: err}
}

// Supported domain operators.
const (
	OpEq    = "="
	OpNotEq = "!="
	OpIn    = "in"
)

type Condition struct {
	Field string
	Op    string
	Value any
}

// Domain is a conjunction of conditions.
type Domain []Condition

func Eq(field string, v any) Condition { return Condition{Field: field, Op: OpEq, Value: v} }

func In(field string, v any) Condition { return Condition{Field: field, Op: OpIn, Value: v} }

func (c Condition) validate() error {
	switch c.Op {
	case OpEq, OpNotEq, OpIn:
	default:
		return fmt.Errorf("unsupported operator %q", c.Op)
	}
	if c.Field == "" {
		return errors.New("empty field")
	}
	return nil
}
