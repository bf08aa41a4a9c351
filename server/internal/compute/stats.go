package compute

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
)

// NoDataMessage is the Report message for an empty age set.
const NoDataMessage = "no active customers registered"

// AgeRange is one left-inclusive, right-exclusive histogram range.
// Max of 0 means unbounded.
type AgeRange struct {
	Label string
	Min   int
	Max   int
}

// AgeRanges are the histogram ranges in ascending order.
var AgeRanges = []AgeRange{
	{Label: "0-17", Min: 0, Max: 18},
	{Label: "18-29", Min: 18, Max: 30},
	{Label: "30-44", Min: 30, Max: 45},
	{Label: "45-59", Min: 45, Max: 60},
	{Label: "60-74", Min: 60, Max: 75},
	{Label: "75+", Min: 75},
}

// Bucket is the number of ages falling into one AgeRange.
type Bucket struct {
	Label string
	Count int
}

// Histogram lists non-empty buckets in ascending range order.
type Histogram []Bucket

// Count returns the count for label, or 0 if the bucket is absent.
func (h Histogram) Count(label string) int {
	for _, b := range h {
		if b.Label == label {
			return b.Count
		}
	}
	return 0
}

// Total returns the sum of all bucket counts.
func (h Histogram) Total() int {
	n := 0
	for _, b := range h {
		n += b.Count
	}
	return n
}

// MarshalJSON encodes the histogram as a JSON object whose keys keep range
// order, e.g. {"18-29":1,"30-44":2}.
func (h Histogram) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(b.Label))
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(b.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the object form written by MarshalJSON. Buckets are
// re-ordered by range; unknown labels are rejected.
func (h *Histogram) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Histogram, 0, len(m))
	for _, r := range AgeRanges {
		if n, ok := m[r.Label]; ok {
			out = append(out, Bucket{Label: r.Label, Count: n})
			delete(m, r.Label)
		}
	}
	if len(m) > 0 {
		return fmt.Errorf("histogram: unknown age ranges %v", slices.Sorted(maps.Keys(m)))
	}
	*h = out
	return nil
}

// Report is the statistics block over a set of ages. Min, Max and Median are
// only meaningful when Count > 0.
type Report struct {
	Count     int
	Mean      float64
	StdDev    float64 // sample standard deviation (n-1 divisor)
	Min       int
	Max       int
	Median    float64
	Histogram Histogram
	Message   string
}

// Summarize computes the Report for ages. The input slice is not modified and
// its order does not affect the result.
func Summarize(ages []int) Report {
	n := len(ages)
	if n == 0 {
		return Report{Histogram: Histogram{}, Message: NoDataMessage}
	}

	sorted := slices.Clone(ages)
	slices.Sort(sorted)

	var sum float64
	for _, a := range sorted {
		sum += float64(a)
	}
	mean := sum / float64(n)

	return Report{
		Count:     n,
		Mean:      mean,
		StdDev:    sampleStdDev(sorted, mean),
		Min:       sorted[0],
		Max:       sorted[n-1],
		Median:    median(sorted),
		Histogram: histogram(sorted),
		Message:   fmt.Sprintf("statistics computed for %d active customers", n),
	}
}

// sampleStdDev uses Bessel's correction. Fewer than two samples yield 0.
func sampleStdDev(ages []int, mean float64) float64 {
	if len(ages) <= 1 {
		return 0
	}
	var sq float64
	for _, a := range ages {
		d := float64(a) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(ages)-1))
}

// median expects ages sorted ascending and non-empty.
func median(sorted []int) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}

func histogram(ages []int) Histogram {
	counts := make([]int, len(AgeRanges))
	for _, a := range ages {
		counts[rangeIndex(a)]++
	}
	h := make(Histogram, 0, len(AgeRanges))
	for i, r := range AgeRanges {
		if counts[i] > 0 {
			h = append(h, Bucket{Label: r.Label, Count: counts[i]})
		}
	}
	return h
}

// rangeIndex returns the AgeRanges index for age. Ages below zero fall into
// the first range.
func rangeIndex(age int) int {
	for i, r := range AgeRanges {
		if r.Max == 0 || age < r.Max {
			return i
		}
	}
	return len(AgeRanges) - 1
}
