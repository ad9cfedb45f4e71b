package service

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/logging"
)

// auditor writes audit entries on a best-effort basis. A nil repository disables it.
type auditor struct {
	repo audit.Repository
}

func (a auditor) transition(ctx context.Context, entity, id, from, to, note string) {
	a.record(ctx, &audit.Entry{
		Kind:     audit.KindTransition,
		Entity:   entity,
		EntityID: id,
		From:     from,
		To:       to,
		Note:     note,
	})
}

func (a auditor) webhook(ctx context.Context, entity, id, note string, payload any) {
	e := &audit.Entry{
		Kind:     audit.KindWebhook,
		Entity:   entity,
		EntityID: id,
		Note:     note,
	}
	switch p := payload.(type) {
	case nil:
	case []byte:
		e.Payload = p
	default:
		if b, err := json.Marshal(p); err == nil {
			e.Payload = b
		}
	}
	a.record(ctx, e)
}

func (a auditor) record(ctx context.Context, e *audit.Entry) {
	if a.repo == nil {
		return
	}
	if err := a.repo.Record(context.WithoutCancel(ctx), e); err != nil {
		logging.Warn().Err(err).
			Str("entity", e.Entity).
			Str("entity_id", e.EntityID).
			Msg("[Audit] Failed to record entry")
	}
}
