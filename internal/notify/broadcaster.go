package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jvillanueva/hilot/internal/model"
	"github.com/jvillanueva/hilot/internal/store"
)

// Broadcaster fans a notification out to every registered push subscription.
// Expired subscriptions are pruned as they are discovered.
type Broadcaster struct {
	service *Service
	push    *store.PushStore
	logger  *slog.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(svc *Service, pushStore *store.PushStore, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		service: svc,
		push:    pushStore,
		logger:  logger.With("component", "notify"),
	}
}

func (b *Broadcaster) sendAll(payload Payload) {
	subs, err := b.push.List()
	if err != nil {
		b.logger.Error("list push subscriptions", "error", err)
		return
	}

	for _, sub := range subs {
		if err := b.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := b.push.DeleteByEndpoint(sub.Endpoint); err != nil {
					b.logger.Warn("prune expired subscription", "error", err)
				}
				continue
			}
			b.logger.Warn("send push notification", "endpoint", sub.Endpoint, "error", err)
		}
	}
}

// BackupFinished notifies subscribers that a backup reached a terminal state.
func (b *Broadcaster) BackupFinished(rec *model.BackupRecord) {
	payload := Payload{
		Title: "Backup Completed",
		Body:  fmt.Sprintf("Backup %q finished successfully", rec.Name),
		URL:   "/backups",
		Tag:   fmt.Sprintf("backup-%d", rec.ID),
	}
	if rec.Status == model.BackupStatusFailed {
		payload.Title = "Backup Failed"
		payload.Body = fmt.Sprintf("Backup %q failed", rec.Name)
		if rec.ErrorMessage != "" {
			payload.Body = fmt.Sprintf("Backup %q failed: %s", rec.Name, rec.ErrorMessage)
		}
	}
	b.sendAll(payload)
}

// RestoreFinished notifies subscribers that a restore reached a terminal state.
func (b *Broadcaster) RestoreFinished(op *model.RestoreOperation) {
	payload := Payload{
		Title: "Restore Completed",
		Body:  "Data restore finished successfully",
		URL:   "/backups",
		Tag:   fmt.Sprintf("restore-%d", op.ID),
	}
	if op.Status == model.RestoreStatusFailed {
		payload.Title = "Restore Failed"
		payload.Body = "Data restore failed"
		if op.ErrorMessage != "" {
			payload.Body = fmt.Sprintf("Data restore failed: %s", op.ErrorMessage)
		}
	}
	b.sendAll(payload)
}

// LowStock notifies subscribers that a vaccine fell below its reorder level.
func (b *Broadcaster) LowStock(v *model.Vaccine) {
	b.sendAll(Payload{
		Title: "Low Vaccine Stock",
		Body:  fmt.Sprintf("%s stock is down to %d doses", v.Name, v.StockOnHand),
		URL:   "/vaccines",
		Tag:   fmt.Sprintf("vaccine-stock-%d", v.ID),
	})
}
