package orchestrator

import (
	"fmt"
	"math/bits"
	"net/url"
	"strings"

	"github.com/tanq16/rangedl/internal/breakpoint"
)

// Segment is a byte range [Start, End) of the resource with Ready bytes done.
type Segment struct {
	Index int
	Start int64
	End   int64
	Ready int64
}

func (s Segment) Len() int64 {
	return s.End - s.Start
}

// boundary returns floor(total*i/n) without overflowing int64.
func boundary(total int64, i, n int) int64 {
	hi, lo := bits.Mul64(uint64(total), uint64(i))
	q, _ := bits.Div64(hi, lo, uint64(n))
	return int64(q)
}

// Partition splits [0, total) into n contiguous segments. Consecutive segments
// share their boundary exactly, so rounding never leaves a gap or overlap.
func Partition(total int64, n int) []Segment {
	if n < 1 || total < 0 {
		return nil
	}
	segs := make([]Segment, n)
	for i := range n {
		segs[i] = Segment{
			Index: i,
			Start: boundary(total, i, n),
			End:   boundary(total, i+1, n),
		}
	}
	return segs
}

// ApplyRecords overrides each segment with its non-empty breakpoint record.
// Records are all-or-nothing: if any of them belongs to another resource or
// the result would not tile [0, total) exactly, the fresh partition is
// returned with an error describing why the records were dropped.
func ApplyRecords(segs []Segment, records breakpoint.Records, rawURL string, total int64) ([]Segment, error) {
	if len(records) == 0 {
		return segs, nil
	}
	if len(records) != len(segs) {
		return segs, fmt.Errorf("breakpoint has %d segments, session has %d", len(records), len(segs))
	}
	out := make([]Segment, len(segs))
	copy(out, segs)
	for i, r := range records {
		if r.IsEmpty() {
			continue
		}
		if r.URL != "" && r.URL != rawURL {
			return segs, fmt.Errorf("breakpoint segment %d belongs to %s", i, r.URL)
		}
		if r.Ready < 0 || r.Ready > r.End-r.Start {
			return segs, fmt.Errorf("breakpoint segment %d has invalid ready count %d", i, r.Ready)
		}
		out[i] = Segment{Index: i, Start: r.Start, End: r.End, Ready: r.Ready}
	}
	if err := checkCoverage(out, total); err != nil {
		return segs, err
	}
	return out, nil
}

func checkCoverage(segs []Segment, total int64) error {
	var next int64
	for _, s := range segs {
		if s.Start != next || s.End < s.Start {
			return fmt.Errorf("segment %d [%d,%d) breaks coverage at %d", s.Index, s.Start, s.End, next)
		}
		next = s.End
	}
	if next != total {
		return fmt.Errorf("segments cover %d of %d bytes", next, total)
	}
	return nil
}

// FileNameFromURL returns the part of the URL path after its final slash, or
// the whole path when there is no slash.
func FileNameFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	if slash := strings.LastIndex(path, "/"); slash != -1 {
		return path[slash+1:]
	}
	return path
}
