package repseq

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// leafOrder returns a permutation of row indexes that places similar
// rows next to each other: average-linkage agglomerative clustering
// over a symmetric distance matrix, then the leaves of the resulting
// dendrogram in merge order.
func leafOrder(dist mat.Matrix) []int {
	n, _ := dist.Dims()
	if n == 0 {
		return nil
	}
	members := make([][]int, n)
	size := make([]float64, n)
	d := make([][]float64, n)
	for i := 0; i < n; i++ {
		members[i] = []int{i}
		size[i] = 1
		d[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			d[i][j] = dist.At(i, j)
		}
	}
	active := make([]int, n)
	for i := range active {
		active[i] = i
	}
	for len(active) > 1 {
		bi, bj := 0, 1
		best := math.Inf(1)
		for ii := 0; ii < len(active); ii++ {
			for jj := ii + 1; jj < len(active); jj++ {
				i, j := active[ii], active[jj]
				if d[i][j] < best {
					best, bi, bj = d[i][j], ii, jj
				}
			}
		}
		i, j := active[bi], active[bj]
		for _, k := range active {
			if k == i || k == j {
				continue
			}
			// average linkage: distance to the merged cluster is
			// the size-weighted mean of the original distances
			dk := (size[i]*d[i][k] + size[j]*d[j][k]) / (size[i] + size[j])
			d[i][k], d[k][i] = dk, dk
		}
		members[i] = append(members[i], members[j]...)
		size[i] += size[j]
		active = append(active[:bj], active[bj+1:]...)
	}
	return members[active[0]]
}
