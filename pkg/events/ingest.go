package events

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/metrics"
)

// ContainerDiedNotifier is the scheduler's side of the ingest path.
// Satisfied by *scheduler.Scheduler.
type ContainerDiedNotifier interface {
	OnContainerDied(containerID string) error
}

// IngestConfig configures the observer event endpoint.
type IngestConfig struct {
	// Prefix is the deployment prefix this cluster's containers are
	// labeled with; events carrying any other zoe.prefix are dropped.
	Prefix string
	// SharedSecret is the bearer token the observer must present.
	SharedSecret string
}

type observerAttributes struct {
	Prefix      string `json:"zoe.prefix"`
	ContainerID int    `json:"zoe.container.id"`
}

type observerActor struct {
	Attributes observerAttributes `json:"attributes"`
}

type observerEvent struct {
	Type   string        `json:"type"`
	Actor  observerActor `json:"actor"`
	Action string        `json:"action"`
}

// Ingest is the HTTP handler for the external observer's container event
// channel. It authenticates with a shared secret, filters events per the
// container/prefix/action rules, and delivers "die" events to the
// scheduler, republishing accepted ones on the broker.
type Ingest struct {
	cfg       IngestConfig
	scheduler ContainerDiedNotifier
	broker    *Broker
}

// NewIngest builds the observer event handler.
func NewIngest(cfg IngestConfig, scheduler ContainerDiedNotifier, broker *Broker) *Ingest {
	return &Ingest{cfg: cfg, scheduler: scheduler, broker: broker}
}

func (h *Ingest) authorized(r *http.Request) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.SharedSecret)) == 1
}

// ServeHTTP implements http.Handler. Authentication is checked before the
// body is even parsed: a bad secret is rejected regardless of payload
// shape.
func (h *Ingest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.SharedSecret == "" || !h.authorized(r) {
		metrics.EventsRejectedTotal.WithLabelValues("auth").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload observerEvent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.EventsRejectedTotal.WithLabelValues("malformed").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.Type != "container" {
		metrics.EventsRejectedTotal.WithLabelValues("type").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if payload.Actor.Attributes.Prefix != h.cfg.Prefix {
		metrics.EventsRejectedTotal.WithLabelValues("prefix").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	metrics.EventsReceivedTotal.WithLabelValues(payload.Action).Inc()

	if payload.Action != "die" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	containerID := strconv.Itoa(payload.Actor.Attributes.ContainerID)
	if err := h.scheduler.OnContainerDied(containerID); err != nil {
		// A container unknown to the store is a benign delivery failure:
		// log and move on, never retried.
		log.Debug("event ingest: on_container_died(" + containerID + "): " + err.Error())
	}

	h.broker.Publish(&Event{
		Type:    EventContainerDied,
		Message: "container " + containerID + " died",
		Metadata: map[string]string{
			"container_id": containerID,
			"prefix":       payload.Actor.Attributes.Prefix,
		},
	})

	w.WriteHeader(http.StatusNoContent)
}
