/*
Package events provides the internal pub/sub broker and the external
observer event ingest endpoint.

Broker is an in-memory, best-effort fan-out bus: Publish never blocks on
slow subscribers, and a full subscriber buffer simply skips that event.
It exists so internal components (metrics, audit logging, future REST
streaming) can observe execution and container lifecycle events without
coupling to the scheduler directly.

Ingest is the HTTP handler mounted at the observer's event channel. The
external observer POSTs one JSON object per container lifecycle event; a
bearer token carrying the configured shared secret is required before the
body is even parsed. Events are filtered in order:

  - type other than "container" is dropped
  - a zoe.prefix that doesn't match this cluster's deployment prefix is
    dropped
  - only the "die" action is delivered onward, as
    scheduler.OnContainerDied(zoe.container.id)

A "die" event the scheduler doesn't recognize (container already reaped,
or never tracked) is logged at debug and otherwise ignored: the observer
gets no different a response and nothing is retried. Every accepted "die"
event is also republished on the Broker for other subscribers.
*/
package events
