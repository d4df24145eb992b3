package transform

import "math/rand"

// Resampler rebalances a labelled training matrix.
type Resampler interface {
	Resample(x [][]float64, y []int) ([][]float64, []int)
}

// RandomOverSampler duplicates randomly chosen minority-class rows until every
// class matches the majority count.
type RandomOverSampler struct {
	Seed int64
}

func (r RandomOverSampler) Resample(x [][]float64, y []int) ([][]float64, []int) {
	byClass := map[int][]int{}
	var order []int
	for i, label := range y {
		if _, ok := byClass[label]; !ok {
			order = append(order, label)
		}
		byClass[label] = append(byClass[label], i)
	}
	majority := 0
	for _, rows := range byClass {
		if len(rows) > majority {
			majority = len(rows)
		}
	}

	outX := append([][]float64{}, x...)
	outY := append([]int{}, y...)
	rng := rand.New(rand.NewSource(r.Seed))
	for _, label := range order {
		rows := byClass[label]
		for n := len(rows); n < majority; n++ {
			pick := rows[rng.Intn(len(rows))]
			outX = append(outX, x[pick])
			outY = append(outY, label)
		}
	}
	return outX, outY
}

// NoResample leaves the data unchanged.
type NoResample struct{}

func (NoResample) Resample(x [][]float64, y []int) ([][]float64, []int) { return x, y }
