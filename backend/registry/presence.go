package registry

import (
	"sort"

	"github.com/adwski/chat-relay/backend/model"
)

// Presence derives the presence list for room from the live member set,
// one entry per member session. Entries keep join order so the list does
// not reshuffle between recomputations when membership did not change.
func (r *Registry) Presence(room string) []model.PresenceEntry {
	r.mx.RLock()
	members, exists := r.rooms[room]
	if !exists {
		r.mx.RUnlock()
		return []model.PresenceEntry{}
	}
	rows := make([]*member, 0, len(members))
	for _, m := range members {
		rows = append(rows, m)
	}
	r.mx.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]model.PresenceEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, model.PresenceEntry{
			UserID:   m.userID,
			Username: m.username,
		})
	}
	return out
}
