package repseq

import (
	"gonum.org/v1/gonum/mat"
	"gopkg.in/check.v1"
)

type clusterSuite struct{}

var _ = check.Suite(&clusterSuite{})

func (s *clusterSuite) TestLeafOrder(c *check.C) {
	// rows 0 and 2 are nearest, row 1 joins their cluster last
	dist := mat.NewDense(3, 3, []float64{
		0, 5, 1,
		5, 0, 4,
		1, 4, 0,
	})
	c.Check(leafOrder(dist), check.DeepEquals, []int{0, 2, 1})

	dist = mat.NewDense(3, 3, []float64{
		0, 9, 9,
		9, 0, 1,
		9, 1, 0,
	})
	c.Check(leafOrder(dist), check.DeepEquals, []int{0, 1, 2})

	// two tight pairs merge internally before joining each other
	dist = mat.NewDense(4, 4, []float64{
		0, 1, 6, 6,
		1, 0, 6, 6,
		6, 6, 0, 1.5,
		6, 6, 1.5, 0,
	})
	c.Check(leafOrder(dist), check.DeepEquals, []int{0, 1, 2, 3})
}

func (s *clusterSuite) TestLeafOrderDegenerate(c *check.C) {
	c.Check(leafOrder(mat.NewDense(1, 1, []float64{0})), check.DeepEquals, []int{0})
	c.Check(leafOrder(&mat.Dense{}), check.IsNil)
}
