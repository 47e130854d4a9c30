package shapes

import "fmt"

type Shape interface {
	Area() float64
	Name() string
}

type Circle struct{ R float64 }

func (c Circle) Area() float64 { return 3 * c.R * c.R }
func (c Circle) Name() string  { return "circle" }

type Square struct{ S float64 }

func (s *Square) Area() float64 { return s.S * s.S }
func (s *Square) Name() string  { return "square" }

type Labeled struct {
	Circle
	Label string
}

type Meters float64

func (m Meters) String() string { return fmt.Sprintf("%gm", float64(m)) }

type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return e.Msg }

type Box[T any] struct{ v T }

func (b Box[T]) Area() float64 { return 0 }
func (b Box[T]) Name() string  { return "box" }

type hidden struct{}

func (hidden) Area() float64 { return 0 }
func (hidden) Name() string  { return "hidden" }
