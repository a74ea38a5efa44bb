package spatial

import "fmt"

// DimensionFilter selects the dimensions a query can see
type DimensionFilter struct {
	dim int32
	all bool
}

// AllDimensions disables dimension filtering
var AllDimensions = DimensionFilter{all: true}

// InDimension matches entities of the dimension and of the shared dimension 0
func InDimension(dim int32) DimensionFilter {
	return DimensionFilter{dim: dim}
}

// Match returns if an entity in dimension dim passes the filter
func (f DimensionFilter) Match(dim int32) bool {
	return f.all || dim == f.dim || dim == 0
}

func (f DimensionFilter) String() string {
	if f.all {
		return "AllDimensions"
	}
	return fmt.Sprintf("InDimension<%d>", f.dim)
}
