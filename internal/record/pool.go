package record

import (
	"fmt"
	"math"

	apperrors "github.com/zipcorpus/zipcorpus/internal/errors"
	"github.com/zipcorpus/zipcorpus/pkg/token"
)

// DefaultMaxDuplicateDraws bounds consecutive duplicate draws while filling a pool.
const DefaultMaxDuplicateDraws = 1_000_000

// PoolConfig controls identifier pool construction.
type PoolConfig struct {
	// Size is the number of distinct identifiers required
	Size int

	// IDLength is the length of each identifier
	IDLength int

	// MaxDuplicateDraws is how many duplicate draws in a row are tolerated
	// before giving up (default: DefaultMaxDuplicateDraws)
	MaxDuplicateDraws int
}

// BuildPool draws identifiers from src until cfg.Size distinct values are
// collected and returns them in draw order. It fails with a pool exhaustion
// error, without drawing, when the alphabet cannot yield cfg.Size distinct
// identifiers of cfg.IDLength, and after cfg.MaxDuplicateDraws consecutive
// duplicates otherwise.
func BuildPool(src Source, cfg PoolConfig) ([]string, error) {
	if cfg.Size < 0 {
		return nil, apperrors.NewPoolExhaustedError(fmt.Sprintf("negative pool size %d", cfg.Size))
	}
	if cfg.Size == 0 {
		return []string{}, nil
	}
	if cfg.MaxDuplicateDraws <= 0 {
		cfg.MaxDuplicateDraws = DefaultMaxDuplicateDraws
	}

	capacity := token.Capacity(cfg.IDLength, math.MaxInt64)
	if uint64(cfg.Size) > capacity {
		return nil, apperrors.NewPoolExhaustedError(fmt.Sprintf(
			"cannot draw %d distinct identifiers of length %d (capacity %d)",
			cfg.Size, cfg.IDLength, capacity)).
			WithDetails(map[string]interface{}{"size": cfg.Size, "id_length": cfg.IDLength})
	}

	seen := make(map[string]struct{}, cfg.Size)
	ids := make([]string, 0, cfg.Size)
	duplicates := 0

	for len(ids) < cfg.Size {
		id := src.Generate(cfg.IDLength)
		if _, dup := seen[id]; dup {
			duplicates++
			if duplicates >= cfg.MaxDuplicateDraws {
				return nil, apperrors.NewPoolExhaustedError(fmt.Sprintf(
					"%d consecutive duplicate draws with %d of %d identifiers collected",
					duplicates, len(ids), cfg.Size)).
					WithDetails(map[string]interface{}{"size": cfg.Size, "collected": len(ids)})
			}
			continue
		}
		duplicates = 0
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

// Partition slices ids into count contiguous groups of per identifiers.
// The groups share the backing array of ids and are disjoint.
func Partition(ids []string, count, per int) ([][]string, error) {
	if count < 0 || per < 0 {
		return nil, fmt.Errorf("record: invalid partition %d x %d", count, per)
	}
	if len(ids) != count*per {
		return nil, fmt.Errorf("record: pool has %d identifiers, need %d", len(ids), count*per)
	}

	groups := make([][]string, count)
	for i := range groups {
		groups[i] = ids[i*per : (i+1)*per : (i+1)*per]
	}
	return groups, nil
}
