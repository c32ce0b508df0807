package postgres

import (
	"fmt"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// SQL for bucket storage. Every granularity has its own table with the same
// shape; the %s placeholder is replaced with a table name from bucketTables,
// never with caller input.

const (
	// queryGetBucket reads one row and its optimistic-lock version.
	queryGetBucket = `
		SELECT components, version
		FROM %s
		WHERE aggregation = $1 AND group_key = $2 AND bucket_start = $3
	`

	// queryInsertBucket creates a row on first merge. A concurrent creator
	// makes it affect zero rows, which the adapter treats as a conflict.
	queryInsertBucket = `
		INSERT INTO %s (aggregation, group_key, bucket_start, components, version, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (aggregation, group_key, bucket_start) DO NOTHING
	`

	// queryUpdateBucket replaces the merged components only if nobody else
	// wrote the row since it was read.
	queryUpdateBucket = `
		UPDATE %s
		SET components = $4, version = version + 1, updated_at = $5
		WHERE aggregation = $1 AND group_key = $2 AND bucket_start = $3 AND version = $6
	`

	// queryRangeBuckets scans [start, end) for one aggregation, optionally
	// narrowed to one group key.
	queryRangeBuckets = `
		SELECT group_key, bucket_start, components
		FROM %s
		WHERE aggregation = $1
		  AND bucket_start >= $2
		  AND bucket_start < $3
		  AND ($4::text = '' OR group_key = $4)
		ORDER BY bucket_start ASC, group_key ASC
	`

	// queryPurgeBuckets deletes rows older than a retention horizon.
	queryPurgeBuckets = `
		DELETE FROM %s
		WHERE aggregation = $1 AND bucket_start < $2
	`

	// queryTableExists checks that the migrations created a bucket table.
	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`
)

// bucketTables maps each granularity to its table.
var bucketTables = map[aggregation.Granularity]string{
	aggregation.Second: "buckets_seconds",
	aggregation.Minute: "buckets_minutes",
	aggregation.Hour:   "buckets_hours",
	aggregation.Day:    "buckets_days",
	aggregation.Month:  "buckets_months",
	aggregation.Year:   "buckets_years",
}

type bucketQueries struct {
	get       string
	insert    string
	update    string
	rangeScan string
	purge     string
}

var queriesByGranularity = buildQueries()

func buildQueries() map[aggregation.Granularity]bucketQueries {
	out := make(map[aggregation.Granularity]bucketQueries, len(bucketTables))
	for g, table := range bucketTables {
		out[g] = queriesFor(table)
	}
	return out
}

func queriesFor(table string) bucketQueries {
	return bucketQueries{
		get:       fmt.Sprintf(queryGetBucket, table),
		insert:    fmt.Sprintf(queryInsertBucket, table),
		update:    fmt.Sprintf(queryUpdateBucket, table),
		rangeScan: fmt.Sprintf(queryRangeBuckets, table),
		purge:     fmt.Sprintf(queryPurgeBuckets, table),
	}
}

func queriesForGranularity(g aggregation.Granularity) (bucketQueries, error) {
	q, ok := queriesByGranularity[g]
	if !ok {
		return bucketQueries{}, fmt.Errorf("no bucket table for granularity %s", g)
	}
	return q, nil
}
