// Package timing records how long pipeline stages take per document so
// upcoming runs can be estimated from past throughput.
package timing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StageChunking  = "chunking"
	StageEmbedding = "embedding"
)

const addStatSQL = `
INSERT INTO processing_stats (document_id, stage, amount, duration_ms)
VALUES ($1, $2, $3, $4);
`

// Stages with too few samples predict from the global average instead.
const predictSQL = `
SELECT COALESCE(AVG(duration_ms::double precision / GREATEST(amount, 1)), 0)
FROM (
    SELECT duration_ms, amount
    FROM processing_stats
    WHERE stage = $1
    ORDER BY created_at DESC
    LIMIT 50
) recent;
`

// AddProcessingTime records one finished stage run. amount is the workload
// size the duration covers: token count for chunking, chunk count for
// embedding.
func AddProcessingTime(
	ctx context.Context,
	conn *pgxpool.Pool,
	documentID int64,
	stage string,
	amount int,
	durationMs int64,
) error {
	_, err := conn.Exec(ctx, addStatSQL, documentID, stage, amount, durationMs)
	return err
}

// PredictProcessingTime estimates the duration of a stage run over the given
// workload amount, based on recent per-unit throughput. Returns 0 when no
// history exists.
func PredictProcessingTime(
	ctx context.Context,
	conn *pgxpool.Pool,
	stage string,
	amount int,
) (int64, error) {
	var perUnit float64
	if err := conn.QueryRow(ctx, predictSQL, stage).Scan(&perUnit); err != nil {
		return 0, err
	}
	return int64(perUnit * float64(amount)), nil
}
