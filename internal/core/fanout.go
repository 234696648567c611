package core

import "github.com/rs/zerolog/log"

// fanoutLocked queues the frame to every member except from.
// Must hold r.mu: enqueueing under the room lock is what keeps one
// sender's events in order at every recipient.
func (r *roomImpl) fanoutLocked(from SessionID, data Frame) PublishResult {
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
