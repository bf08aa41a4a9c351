package compute

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		ages []int
		want Report
	}{
		{
			name: "three customers",
			ages: []int{20, 30, 40},
			want: Report{
				Count: 3, Mean: 30, StdDev: 10, Min: 20, Max: 40, Median: 30,
				Histogram: Histogram{{"18-29", 1}, {"30-44", 2}},
				Message:   "statistics computed for 3 active customers",
			},
		},
		{
			name: "two customers",
			ages: []int{10, 20},
			want: Report{
				Count: 2, Mean: 15, StdDev: math.Sqrt(50), Min: 10, Max: 20, Median: 15,
				Histogram: Histogram{{"0-17", 1}, {"18-29", 1}},
				Message:   "statistics computed for 2 active customers",
			},
		},
		{
			name: "single customer has zero deviation",
			ages: []int{42},
			want: Report{
				Count: 1, Mean: 42, StdDev: 0, Min: 42, Max: 42, Median: 42,
				Histogram: Histogram{{"30-44", 1}},
				Message:   "statistics computed for 1 active customers",
			},
		},
		{
			name: "even count takes the middle average",
			ages: []int{10, 80, 20, 60},
			want: Report{
				Count: 4, Mean: 42.5, StdDev: math.Sqrt(3275.0 / 3), Min: 10, Max: 80, Median: 40,
				Histogram: Histogram{{"0-17", 1}, {"18-29", 1}, {"60-74", 1}, {"75+", 1}},
				Message:   "statistics computed for 4 active customers",
			},
		},
		{
			name: "range boundaries are left-inclusive",
			ages: []int{17, 18, 29, 30, 44, 45, 59, 60, 74, 75},
			want: Report{
				Count: 10, Mean: 45.1, StdDev: stdDevRef([]int{17, 18, 29, 30, 44, 45, 59, 60, 74, 75}),
				Min: 17, Max: 75, Median: 44.5,
				Histogram: Histogram{{"0-17", 1}, {"18-29", 2}, {"30-44", 2}, {"45-59", 2}, {"60-74", 2}, {"75+", 1}},
				Message:   "statistics computed for 10 active customers",
			},
		},
		{
			name: "empty",
			ages: nil,
			want: Report{Histogram: Histogram{}, Message: NoDataMessage},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Summarize(tc.ages)
			if diff := cmp.Diff(tc.want, got, approx); diff != "" {
				t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSummarize_DoesNotModifyInput(t *testing.T) {
	ages := []int{50, 10, 30}
	Summarize(ages)
	if diff := cmp.Diff([]int{50, 10, 30}, ages); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

func TestSummarize_PermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ages := make([]int, 57)
	for i := range ages {
		ages[i] = rng.Intn(120)
	}
	want := Summarize(ages)

	for i := 0; i < 20; i++ {
		rng.Shuffle(len(ages), func(a, b int) { ages[a], ages[b] = ages[b], ages[a] })
		if diff := cmp.Diff(want, Summarize(ages)); diff != "" {
			t.Fatalf("shuffle %d changed the report (-want +got):\n%s", i, diff)
		}
	}
}

func TestSummarize_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for round := 0; round < 50; round++ {
		ages := make([]int, 1+rng.Intn(40))
		for i := range ages {
			ages[i] = rng.Intn(151)
		}
		r := Summarize(ages)

		if r.Histogram.Total() != r.Count {
			t.Fatalf("round %d: histogram total %d != count %d", round, r.Histogram.Total(), r.Count)
		}
		if r.StdDev < 0 {
			t.Fatalf("round %d: negative stddev %f", round, r.StdDev)
		}
		if float64(r.Min) > r.Mean || r.Mean > float64(r.Max) {
			t.Fatalf("round %d: mean %f outside [%d, %d]", round, r.Mean, r.Min, r.Max)
		}
		if float64(r.Min) > r.Median || r.Median > float64(r.Max) {
			t.Fatalf("round %d: median %f outside [%d, %d]", round, r.Median, r.Min, r.Max)
		}
		if !almostEqual(r.StdDev, stdDevRef(ages), 1e-9) {
			t.Fatalf("round %d: stddev %f, reference %f", round, r.StdDev, stdDevRef(ages))
		}
	}
}

func TestSummarize_IdenticalAgesHaveZeroDeviation(t *testing.T) {
	r := Summarize([]int{33, 33, 33, 33})
	if r.StdDev != 0 {
		t.Errorf("StdDev = %f, want 0", r.StdDev)
	}
	if r.Median != 33 || r.Mean != 33 {
		t.Errorf("Mean/Median = %f/%f, want 33/33", r.Mean, r.Median)
	}
}

func TestHistogram_JSON(t *testing.T) {
	h := Histogram{{"18-29", 1}, {"30-44", 2}}
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"18-29":1,"30-44":2}` {
		t.Errorf("marshal = %s", b)
	}

	var back Histogram
	if err := json.Unmarshal([]byte(`{"75+":3,"0-17":1}`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(Histogram{{"0-17", 1}, {"75+", 3}}, back); diff != "" {
		t.Errorf("unmarshal mismatch (-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"90-99":1}`), &back); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestHistogram_EmptyMarshalsAsObject(t *testing.T) {
	b, err := json.Marshal(Summarize(nil).Histogram)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "{}" {
		t.Errorf("marshal = %s, want {}", b)
	}
}

func TestRangeIndex_NegativeAge(t *testing.T) {
	if got := rangeIndex(-3); got != 0 {
		t.Errorf("rangeIndex(-3) = %d, want 0", got)
	}
	if got := rangeIndex(200); got != len(AgeRanges)-1 {
		t.Errorf("rangeIndex(200) = %d, want %d", got, len(AgeRanges)-1)
	}
}

// stdDevRef is a two-pass reference implementation over unsorted input.
func stdDevRef(ages []int) float64 {
	if len(ages) < 2 {
		return 0
	}
	var sum float64
	for _, a := range ages {
		sum += float64(a)
	}
	mean := sum / float64(len(ages))
	var sq float64
	for _, a := range ages {
		sq += (float64(a) - mean) * (float64(a) - mean)
	}
	return math.Sqrt(sq / float64(len(ages)-1))
}
