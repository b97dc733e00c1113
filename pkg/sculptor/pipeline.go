package sculptor

import (
	"context"

	"github.com/jmylchreest/sculptor/internal/logger"
	"github.com/jmylchreest/sculptor/pkg/filter"
)

// Stage pairs a sculptor with an optional keep/drop predicate. The
// predicate sees the merged record (input fields plus everything extracted
// so far) after the stage runs.
type Stage struct {
	Sculptor *Sculptor
	Filter   filter.Predicate
}

// Pipeline chains extraction stages. Records dropped by a stage's filter
// never reach later stages and are excluded from the final result — that is
// intentional filtering, distinct from extraction failure.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Add appends a stage. A nil predicate keeps every record.
// Add returns the pipeline for chaining.
func (p *Pipeline) Add(s *Sculptor, pred filter.Predicate) *Pipeline {
	p.stages = append(p.stages, Stage{Sculptor: s, Filter: pred})
	return p
}

// Stages returns a copy of the pipeline's stages.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Process runs each stage's batch extraction over the records that survived
// the previous stage. Stages run sequentially — no cross-stage overlap —
// which keeps inter-stage filtering easy to reason about; parallelism lives
// inside each stage's batch. Extraction results are always merged onto the
// records here, regardless of each sculptor's own merge setting, so filters
// and later stages see accumulated fields.
func (p *Pipeline) Process(ctx context.Context, records []map[string]any, opts ...BatchOption) []map[string]any {
	survivors := records
	for i, stage := range p.stages {
		if len(survivors) == 0 {
			break
		}

		logger.Debug("pipeline stage starting",
			"stage", i,
			"records", len(survivors),
			"model", stage.Sculptor.Provider().Model())

		stageOpts := make([]BatchOption, 0, len(opts)+1)
		stageOpts = append(stageOpts, opts...)
		stageOpts = append(stageOpts, withMerge(true))

		out := stage.Sculptor.SculptBatch(ctx, survivors, stageOpts...)

		if stage.Filter == nil {
			survivors = out
			continue
		}

		kept := make([]map[string]any, 0, len(out))
		for _, rec := range out {
			if stage.Filter(rec) {
				kept = append(kept, rec)
			}
		}

		logger.Debug("pipeline stage filtered",
			"stage", i,
			"kept", len(kept),
			"dropped", len(out)-len(kept))

		survivors = kept
	}
	return survivors
}
