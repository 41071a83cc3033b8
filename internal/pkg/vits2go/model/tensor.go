package model

import (
	"context"
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int64
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Tensor is a dense row-major tensor. Exactly one of Floats or Ints holds
// the data, selected by DType.
type Tensor struct {
	DType  DType
	Shape  []int64
	Floats []float32
	Ints   []int64
}

func NewFloat32(shape []int64, data []float32) *Tensor {
	return &Tensor{DType: Float32, Shape: shape, Floats: data}
}

func NewInt64(shape []int64, data []int64) *Tensor {
	return &Tensor{DType: Int64, Shape: shape, Ints: data}
}

// Elements is the product of the shape dimensions.
func (t *Tensor) Elements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t *Tensor) Len() int {
	if t.DType == Int64 {
		return len(t.Ints)
	}
	return len(t.Floats)
}

func (t *Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("negative dimension in shape %v", t.Shape)
		}
	}
	switch t.DType {
	case Float32, Int64:
	default:
		return fmt.Errorf("unsupported dtype %v", t.DType)
	}
	if int64(t.Len()) != t.Elements() {
		return fmt.Errorf("%v tensor with shape %v holds %d values, expected %d", t.DType, t.Shape, t.Len(), t.Elements())
	}
	return nil
}

// Session runs one loaded model graph. Inputs and outputs are keyed by
// tensor name. Sessions are not safe for concurrent Run calls.
type Session interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close() error
}
