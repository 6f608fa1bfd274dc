package view

// longestIncreasing marks one longest strictly increasing subsequence of the
// non-negative values in seq. Negative values are skipped. Runs in
// O(n log n) and always picks the same subsequence for the same input.
func longestIncreasing(seq []int) []bool {
	keep := make([]bool, len(seq))
	tails := make([]int, 0, len(seq))
	pred := make([]int, len(seq))

	for i, v := range seq {
		if v < 0 {
			continue
		}
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := int(uint(lo+hi) >> 1)
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			pred[i] = tails[lo-1]
		} else {
			pred[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	if len(tails) == 0 {
		return keep
	}
	for i := tails[len(tails)-1]; i >= 0; i = pred[i] {
		keep[i] = true
	}
	return keep
}
