package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultReEmbedBatch = 100

type StaleReEmbedder interface {
	ReEmbedStale(ctx context.Context, limit int) (int, error)
}

// ReEmbedJob refreshes document chunks whose embedding is missing or was
// produced by another model.
type ReEmbedJob struct {
	index StaleReEmbedder
	batch int
}

func NewReEmbedJob(index StaleReEmbedder, batch int) *ReEmbedJob {
	if batch <= 0 {
		batch = defaultReEmbedBatch
	}
	return &ReEmbedJob{index: index, batch: batch}
}

func (j *ReEmbedJob) Name() string {
	return "document_reembed"
}

func (j *ReEmbedJob) Run(ctx context.Context) error {
	if j.index == nil {
		return nil
	}
	total := 0
	for {
		n, err := j.index.ReEmbedStale(ctx, j.batch)
		total += n
		if err != nil {
			return err
		}
		if n < j.batch {
			break
		}
	}
	if total > 0 {
		logutil.GetLogger(ctx).Info("document chunks re-embedded", zap.Int("count", total))
	}
	return nil
}
