package solid

import "example.com/shapes"

type Cube struct {
	shapes.Square
}

type Ball struct{ R float64 }

func (Ball) Area() float64 { return 4 * 3 * b2(0) }
func (Ball) Name() string  { return "ball" }

func b2(x float64) float64 { return x * x }
