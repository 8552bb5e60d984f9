package archive

import (
	"context"

	"github.com/banshee-data/polarization.report/internal/monitoring"
	"github.com/banshee-data/polarization.report/internal/pipeline"
)

// Archiver saves each finished run to a Store. It implements
// pipeline.Emitter.
type Archiver struct {
	Store *Store
	Meta  RunMeta

	// RunID is set by Emit.
	RunID string
}

var _ pipeline.Emitter = (*Archiver)(nil)

// Emit archives res.
func (a *Archiver) Emit(ctx context.Context, res *pipeline.Result) error {
	id, err := a.Store.SaveRun(ctx, a.Meta, res)
	if err != nil {
		return err
	}
	a.RunID = id
	monitoring.Logf("archive: saved run %s (%d records)", id, len(res.Records))
	return nil
}
