// Package rarity estimates how rare a plate segment value is across stored records.
package rarity

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/store"
)

// Segment value bounds. Every two and three digit segment falls in this range.
const (
	MinSegment   = 0
	MaxSegment   = 999
	SegmentSpace = MaxSegment - MinSegment + 1
)

// FrequencyTable holds the appearance count of every segment value.
// A record counts once per value even when the value fills several segments.
type FrequencyTable struct {
	counts [SegmentSpace]int64
	sorted [SegmentSpace]int64 // descending
}

// BuildFrequencyTable counts appearances in a single pass over every stored record.
func BuildFrequencyTable(ctx context.Context, r store.Reader) (*FrequencyTable, error) {
	ft := &FrequencyTable{}
	err := r.ScanSegments(ctx, func(first, second, third int) error {
		return ft.add(first, second, third)
	})
	if err != nil {
		return nil, eris.Wrap(err, "rarity: build frequency table")
	}
	ft.finish()
	return ft, nil
}

func (ft *FrequencyTable) add(first, second, third int) error {
	for _, v := range [3]int{first, second, third} {
		if err := CheckSegment(v); err != nil {
			return eris.Wrapf(err, "rarity: stored record %d/%d/%d", first, second, third)
		}
	}
	ft.counts[first]++
	if second != first {
		ft.counts[second]++
	}
	if third != first && third != second {
		ft.counts[third]++
	}
	return nil
}

func (ft *FrequencyTable) finish() {
	ft.sorted = ft.counts
	s := ft.sorted[:]
	sort.Slice(s, func(i, j int) bool { return s[i] > s[j] })
}

// Count returns the appearance count of v.
func (ft *FrequencyTable) Count(v int) (int64, error) {
	if err := CheckSegment(v); err != nil {
		return 0, err
	}
	return ft.counts[v], nil
}

// Rank returns the 0-indexed position of the first occurrence of v's count
// among all counts sorted in descending order. Tied values share that position.
func (ft *FrequencyTable) Rank(v int) (int, error) {
	if err := CheckSegment(v); err != nil {
		return 0, err
	}
	c := ft.counts[v]
	return sort.Search(SegmentSpace, func(i int) bool { return ft.sorted[i] <= c }), nil
}

// Percentile maps v's rank onto 1..100. Rarer values get higher percentiles.
func (ft *FrequencyTable) Percentile(v int) (int, error) {
	rank, err := ft.Rank(v)
	if err != nil {
		return 0, err
	}
	return PercentileForRank(rank), nil
}

// PercentileForRank computes floor(rank / SegmentSpace * 100) + 1.
func PercentileForRank(rank int) int {
	return rank*100/SegmentSpace + 1
}

// Top returns up to n values ordered by appearance count, most common first,
// or rarest first when rarest is set. Equal counts are ordered by value.
func (ft *FrequencyTable) Top(n int, rarest bool) []model.SegmentCount {
	all := make([]model.SegmentCount, SegmentSpace)
	for v := range SegmentSpace {
		all[v] = model.SegmentCount{Value: v, AppearanceCount: ft.counts[v]}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if rarest {
			return all[i].AppearanceCount < all[j].AppearanceCount
		}
		return all[i].AppearanceCount > all[j].AppearanceCount
	})
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return all[:n]
}
