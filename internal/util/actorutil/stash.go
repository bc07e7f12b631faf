package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash defers messages received while an actor is busy so they can be
// replayed, with their original sender, once it returns to its default
// state.
type Stash struct {
	stash []stashElem
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

func (stash *Stash) Stash(ctx actor.Context, msg any) {
	stash.stash = append(stash.stash, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

func (stash *Stash) Len() int {
	return len(stash.stash)
}

func (stash *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range stash.stash {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	stash.stash = nil
}

// Clear drops every stashed message. Used when an actor stops.
func (stash *Stash) Clear() {
	stash.stash = nil
}
