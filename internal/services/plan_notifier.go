package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/contentplan-backend/internal/realtime"
)

// PlanNotifier publishes strategy plan lifecycle events on plan:{id}.
type PlanNotifier struct {
	emit SSEEmitter
}

func NewPlanNotifier(emit SSEEmitter) *PlanNotifier {
	if emit == nil {
		emit = nopEmitter{}
	}
	return &PlanNotifier{emit: emit}
}

func (n *PlanNotifier) PlanEvent(planID uuid.UUID, event string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["plan_id"] = planID
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.PlanChannel(planID),
		Event:   realtime.SSEEvent(event),
		Data:    data,
	})
}
