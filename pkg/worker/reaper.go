package worker

import (
	"time"
)

// reaperLoop periodically removes containers that outlived the
// configured maximum age. Runs that crashed mid-flight, or a previous
// worker process that died, leave containers behind; the reaper is
// what gets rid of them.
func (w *Worker) reaperLoop() {
	defer w.wg.Done()
	interval := time.Duration(w.cfg.Worker.ReaperInterval) * time.Second
	maxAge := time.Duration(w.cfg.Worker.ContainerMaxAge) * time.Second

	// Sweep once at startup to recover from a previous crash.
	w.reapContainers(maxAge)

	ticker := w.clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.reapContainers(maxAge)
		case <-w.stopCh:
			return
		}
	}
}

// reapContainers removes every container older than maxAge that no
// active run owns.
func (w *Worker) reapContainers(maxAge time.Duration) {
	infos, err := w.engine.Containers(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Failed to list containers for reaping")
		}
		return
	}

	now := w.clk.Now()
	for _, info := range infos {
		age := now.Sub(info.CreatedAt)
		if age < maxAge {
			continue
		}
		if w.active.Has(info.ID) {
			continue
		}
		if err := w.engine.Remove(w.ctx, info.ID); err != nil {
			w.logger.Error().Err(err).
				Str("container_id", info.ID).
				Msg("Failed to reap container")
			continue
		}
		w.logger.Info().
			Str("container_id", info.ID).
			Dur("age", age).
			Msg("Reaped leftover container")
	}
}
