package query

import (
	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
)

// Result is one aggregate row returned to callers.
type Result struct {
	GroupKey    string                  `json:"group_key"`
	Granularity aggregation.Granularity `json:"granularity"`
	BucketStart int64                   `json:"agg_timestamp"`
	Values      map[string]interface{}  `json:"values"`
}

type rowID struct {
	group string
	start int64
}

// Compose overlays in-flight rows on persisted rows. In-flight rows are newer
// than anything persisted for the same bucket and are merged in the given
// order, so their last values win. Rows the plan does not select are
// discarded; the result is ordered by bucket start, then group key.
func (p *Plan) Compose(persisted, inflight []storage.Row) []storage.Row {
	out := make([]storage.Row, 0, len(persisted)+len(inflight))
	index := make(map[rowID]int, len(persisted)+len(inflight))

	add := func(r storage.Row) {
		if !p.Matches(r.Key) {
			return
		}
		id := rowID{group: r.Key.GroupKey, start: r.Key.BucketStart}
		if i, ok := index[id]; ok {
			out[i].Acc.Merge(r.Acc)
			return
		}
		index[id] = len(out)
		out = append(out, storage.Row{Key: r.Key, Acc: r.Acc.Clone()})
	}

	for _, r := range persisted {
		add(r)
	}
	for _, r := range inflight {
		add(r)
	}
	storage.SortRows(out)
	return out
}
