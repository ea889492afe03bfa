package domain

import (
	"encoding/json"
	"fmt"
)

type OpKind string

const (
	OpUpsert OpKind = "upsert"
	OpDelete OpKind = "delete"
)

// BulkOperation is one instruction destined for a batched write call.
// Document is empty for deletes.
type BulkOperation struct {
	Kind     OpKind          `json:"kind"`
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document,omitempty"`
}

func Upsert(id string, doc json.RawMessage) BulkOperation {
	return BulkOperation{Kind: OpUpsert, ID: id, Document: doc}
}

func Delete(id string) BulkOperation {
	return BulkOperation{Kind: OpDelete, ID: id}
}

func (o BulkOperation) String() string {
	return fmt.Sprintf("%s %s", o.Kind, o.ID)
}

// Mapped pairs an upstream item with the bulk operation derived from it.
type Mapped[T any] struct {
	Source T
	Op     BulkOperation
}

// Target identifies where bulk operations are written.
type Target struct {
	Index string `json:"index" yaml:"index"`
	Type  string `json:"type,omitempty" yaml:"type"`
}

const DefaultTargetType = "_doc"
