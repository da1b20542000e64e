package engine

import (
	"sort"

	"github.com/thisislance98/claudia/internal/daemon/persist"
)

// registry holds every session in exactly one of three collections. The
// put methods remove the id from the other two.
type registry struct {
	live         map[string]*liveSession
	disconnected map[string]*persist.Record
	archived     map[string]*persist.Record
}

func newRegistry() *registry {
	return &registry{
		live:         make(map[string]*liveSession),
		disconnected: make(map[string]*persist.Record),
		archived:     make(map[string]*persist.Record),
	}
}

func (r *registry) has(id string) bool {
	_, a := r.live[id]
	_, b := r.disconnected[id]
	_, c := r.archived[id]
	return a || b || c
}

func (r *registry) remove(id string) {
	delete(r.live, id)
	delete(r.disconnected, id)
	delete(r.archived, id)
}

func (r *registry) putLive(ls *liveSession) {
	r.remove(ls.meta.ID)
	r.live[ls.meta.ID] = ls
}

func (r *registry) putDisconnected(rec *persist.Record) {
	r.remove(rec.ID)
	r.disconnected[rec.ID] = rec
}

func (r *registry) putArchived(rec *persist.Record) {
	r.remove(rec.ID)
	r.archived[rec.ID] = rec
}

// liveSessions returns live sessions ordered by creation time.
func (r *registry) liveSessions() []*liveSession {
	out := make([]*liveSession, 0, len(r.live))
	for _, ls := range r.live {
		out = append(out, ls)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].meta.CreatedAt.Before(out[j].meta.CreatedAt)
	})
	return out
}

func (r *registry) disconnectedRecords() []*persist.Record {
	return sortedRecords(r.disconnected)
}

func (r *registry) archivedRecords() []*persist.Record {
	return sortedRecords(r.archived)
}

func sortedRecords(m map[string]*persist.Record) []*persist.Record {
	out := make([]*persist.Record, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
