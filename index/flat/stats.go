package flat

import "github.com/hupe1980/near"

// Stats describes the flat index.
type Stats struct {
	Live      int
	Dimension int
	Metric    near.Metric
}

// Stats returns statistics about the index.
func (f *Index) Stats() Stats {
	return Stats{
		Live:      f.Len(),
		Dimension: f.space.Dimension(),
		Metric:    f.space.Metric(),
	}
}
