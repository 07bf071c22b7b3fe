package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgadmin/modules/org/domain/events"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/application"
)

// TreeEventsHandler reacts to committed tree writes.
type TreeEventsHandler struct {
	invalidate func(context.Context, events.TreeChange)
	log        *logrus.Entry
}

func RegisterTreeEventHandlers(app application.Application, cache services.TreeCache) *TreeEventsHandler {
	h := &TreeEventsHandler{
		invalidate: services.InvalidateOnChange(cache),
		log:        app.Logger().WithField("component", "org-events"),
	}
	app.EventPublisher().Subscribe(h.onTreeChange)
	return h
}

func (h *TreeEventsHandler) onTreeChange(ctx context.Context, ev events.TreeChange) {
	if h == nil || ev == nil {
		return
	}
	h.invalidate(ctx, ev)

	meta := ev.Changed()
	h.log.WithFields(logrus.Fields{
		"event_id":    meta.EventID.String(),
		"change_type": meta.ChangeType,
		"request_id":  meta.RequestID,
	}).Debug("org tree changed")
}
