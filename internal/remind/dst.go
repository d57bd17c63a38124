package remind

import (
	"context"
	"fmt"

	"remindbot/pkg/dates"
	"remindbot/pkg/logx"
)

// ApplyDST shifts every active reminder's wall clock one hour for a
// daylight-saving transition and reschedules each fire. The direction is
// validated before any reminder is touched; after that the batch is
// best-effort with no rollback, so a partial failure leaves a mix and is
// reported per item.
func (s *Service) ApplyDST(ctx context.Context, dir dates.DSTDirection) (moved int, failed int, err error) {
	if _, err := dates.ApplyDSTShift(s.now(), dir); err != nil {
		return 0, 0, err
	}

	active, err := s.store.FindByStatus(ctx, StatusActive)
	if err != nil {
		return 0, 0, fmt.Errorf("remind: dst shift: %w", err)
	}

	for _, r := range active {
		shifted, serr := dates.ApplyDSTShift(r.DueDate, dir)
		if serr != nil {
			failed++
			s.log.Warn("dst shift failed", logx.String("reminder", r.ID), logx.Err(serr))
			continue
		}
		s.CancelFire(r.JobHandle)
		r.DueDate = shifted
		if serr := s.ScheduleFire(r); serr != nil {
			failed++
			s.log.Warn("dst reschedule failed", logx.String("reminder", r.ID), logx.Err(serr))
			continue
		}
		if serr := s.store.Upsert(ctx, r); serr != nil {
			failed++
			s.log.Warn("dst persist failed", logx.String("reminder", r.ID), logx.Err(serr))
			continue
		}
		moved++
	}

	s.log.Info("dst shift applied",
		logx.String("direction", string(dir)),
		logx.Int("moved", moved),
		logx.Int("failed", failed))
	return moved, failed, nil
}
