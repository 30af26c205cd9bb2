package store

import (
	"context"
	"fmt"

	"github.com/roach88/stratum/internal/dserr"
)

// AllocateBlock atomically advances the durable per-prefix counter by block
// and returns the pre-increment value: the start of a contiguous range of
// block ids. A missing prefix row is a fatal internal error; the row is
// seeded when the namespace is provisioned.
func (s *Store) AllocateBlock(ctx context.Context, prefix string, block int64) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE id_seq SET next_id = next_id + ? WHERE prefix = ?`, block, prefix)
	if err != nil {
		return 0, fmt.Errorf("allocate id block: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("allocate id block: rows affected: %w", err)
	}
	if affected != 1 {
		return 0, dserr.Newf(dserr.CodeInternal, "id_seq row missing for prefix %q", prefix)
	}

	var next int64
	err = s.db.QueryRowContext(ctx,
		`SELECT next_id FROM id_seq WHERE prefix = ?`, prefix).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate id block: read counter: %w", err)
	}
	return next - block, nil
}
