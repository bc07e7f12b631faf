package domain

import "time"

const (
	ACTOR_ID_POLLER     = "poller"
	ACTOR_ID_SHELLYMQTT = "shellymqtt"
)

const (
	POLLER_STATE_STARTING        = "starting"
	POLLER_STATE_POLLING         = "polling"
	POLLER_STATE_STALE           = "stale"
	POLLER_STATE_UNAUTHENTICATED = "unauthenticated"
)

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id          string
	Healthy     bool
	State       string
	LastSuccess time.Time
	LastError   string
}
