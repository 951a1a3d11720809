package expr

import "fmt"

// Operator is a binary raster-algebra operator.
type Operator string

const (
	Add Operator = "+"
	Sub Operator = "-"
	Mul Operator = "*"
	Div Operator = "/"
)

// Algebra is a binary operation between two named rasters.
type Algebra struct {
	Left  string
	Op    Operator
	Right string
}

// Subtract is left minus right, cell by cell.
func Subtract(left, right string) Algebra {
	return Algebra{Left: left, Op: Sub, Right: right}
}

// Statement renders the raster calculator syntax, file names quoted.
func (a Algebra) Statement() string {
	return fmt.Sprintf("'%s'%s'%s'", a.Left, a.Op, a.Right)
}
