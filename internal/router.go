package internal

import (
	"context"

	"github.com/sirupsen/logrus"

	"socialwire/internal/presence"
)

// Router delivers targeted events to live connections. Delivery is at most
// once and best effort: an offline target is a silent no-op, there is no
// queue and no retry.
type Router struct {
	registry *presence.Registry
	hub      *Hub
	metrics  *Metrics
	log      *logrus.Logger
}

func NewRouter(registry *presence.Registry, hub *Hub, metrics *Metrics, log *logrus.Logger) *Router {
	return &Router{registry: registry, hub: hub, metrics: metrics, log: log}
}

// SendTo routes one event to the user's representative connection (the most
// recently registered one). Offline target: no-op, no error. A handle hosted
// by another server process also drops here; flagged in metrics since a
// pile-up of those would mean the deployment is missing a relay tier.
func (router *Router) SendTo(userID int64, event string, data interface{}) error {
	entry, err := router.registry.Lookup(context.Background(), userID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	payload, err := marshalEvent(event, data)
	if err != nil {
		return err
	}
	if router.hub.deliverTo(entry.ConnID, payload) {
		router.metrics.IncRouted()
		return nil
	}
	router.metrics.IncDropped()
	router.log.WithFields(logrus.Fields{
		"event": event,
		"user":  userID,
		"conn":  entry.ConnID,
	}).Debug("target handle not local, dropping event")
	return nil
}

// Broadcast delivers an event to every connection this user has on this
// process. Used for self-notifications, where each device wants its own copy.
func (router *Router) Broadcast(userID int64, event string, data interface{}) error {
	payload, err := marshalEvent(event, data)
	if err != nil {
		return err
	}
	router.metrics.AddRouted(router.hub.deliverUser(userID, payload))
	return nil
}
