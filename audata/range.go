package audata

import "fmt"

// Range selects dataset rows. Positions may be negative to count from the
// end, as in Python slices.
type Range struct {
	start, stop       int
	hasStart, hasStop bool
	index             bool
	last              int
	isLast            bool
	step              int
	hasStep           bool
}

// All selects every row.
func All() Range { return Range{} }

// Rows selects [start, stop).
func Rows(start, stop int) Range {
	return Range{start: start, stop: stop, hasStart: true, hasStop: true}
}

// From selects start to the end.
func From(start int) Range { return Range{start: start, hasStart: true} }

// Upto selects the first rows up to stop.
func Upto(stop int) Range { return Range{stop: stop, hasStop: true} }

// Index selects one row.
func Index(i int) Range { return Range{start: i, hasStart: true, index: true} }

// Last selects the final n rows. Last(0) selects no rows, unlike the
// Python slice [-0:].
func Last(n int) Range { return Range{last: n, isLast: true} }

// Step keeps every k-th row of the selection. k must be positive.
func (r Range) Step(k int) Range {
	r.step, r.hasStep = k, true
	return r
}

func (r Range) String() string {
	switch {
	case r.index:
		return fmt.Sprintf("[%d]", r.start)
	case r.isLast:
		return fmt.Sprintf("[-%d:]", r.last)
	}
	s := "["
	if r.hasStart {
		s += fmt.Sprint(r.start)
	}
	s += ":"
	if r.hasStop {
		s += fmt.Sprint(r.stop)
	}
	if r.hasStep && r.step != 1 {
		s += fmt.Sprintf(":%d", r.step)
	}
	return s + "]"
}

// span is a resolved selection: rows start, start+step, ... below stop.
type span struct {
	start, stop, step int
}

func (s span) count() int {
	if s.stop <= s.start {
		return 0
	}
	return (s.stop - s.start + s.step - 1) / s.step
}

// end is one past the last selected row.
func (s span) end() int {
	n := s.count()
	if n == 0 {
		return s.start
	}
	return s.start + (n-1)*s.step + 1
}

// indices lists the selected rows relative to s.start.
func (s span) indices() []int {
	out := make([]int, s.count())
	for i := range out {
		out[i] = i * s.step
	}
	return out
}

func clamp(pos, n int) int {
	if pos < 0 {
		pos += n
	}
	return max(0, min(pos, n))
}

// resolve pins the range to a dataset of n rows.
func (r Range) resolve(n int) (span, error) {
	step := 1
	if r.hasStep {
		step = r.step
	}
	if step < 1 {
		return span{}, fmt.Errorf("%w: step %d must be positive", ErrIndexOutOfRange, step)
	}
	switch {
	case r.index:
		i := r.start
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return span{}, fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, r.start, n)
		}
		return span{start: i, stop: i + 1, step: 1}, nil
	case r.isLast:
		start := max(0, n-max(r.last, 0))
		return span{start: start, stop: n, step: step}, nil
	}
	s := span{start: 0, stop: n, step: step}
	if r.hasStart {
		s.start = clamp(r.start, n)
	}
	if r.hasStop {
		s.stop = clamp(r.stop, n)
	}
	if s.stop < s.start {
		s.stop = s.start
	}
	return s, nil
}
