package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/bidwatch/internal/logging"
	"github.com/dukerupert/bidwatch/internal/model"
	"github.com/dukerupert/bidwatch/internal/notify"
)

const sendTimeout = 10 * time.Second

// Subscriptions is the storage of registered push endpoints.
type Subscriptions interface {
	List() ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Notifier forwards native notices to every stored subscription. Sends run
// in the background so Show never blocks a socket read loop.
type Notifier struct {
	service *Service
	subs    Subscriptions
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewNotifier(service *Service, subs Subscriptions, logger *slog.Logger) *Notifier {
	return &Notifier{
		service: service,
		subs:    subs,
		logger:  logging.Or(logger),
	}
}

func (n *Notifier) Show(notice notify.Notice) {
	if !notice.Native {
		return
	}

	subs, err := n.subs.List()
	if err != nil {
		n.logger.Error("list push subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := Payload{
		Title: notice.Title,
		Body:  notice.Message,
		Level: string(notice.Level),
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		for i := range subs {
			sub := &subs[i]
			err := n.service.Send(ctx, sub, payload)
			switch {
			case err == nil:
			case errors.Is(err, ErrExpired):
				n.logger.Info("push subscription expired", "device", sub.DeviceName)
				if err := n.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					n.logger.Error("delete expired subscription", "error", err)
				}
			default:
				n.logger.Warn("send push", "device", sub.DeviceName, "error", err)
			}
		}
	}()
}

// Wait blocks until every in-flight send has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

var _ notify.Notifier = (*Notifier)(nil)
