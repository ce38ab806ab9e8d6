package pack

import (
	"context"
	"sort"
	"time"

	"github.com/zond/satchel"
	"github.com/zond/satchel/storage"
	"github.com/zond/satchel/structs"
)

type session struct {
	actor    string
	source   *structs.Item
	view     []structs.Stack
	openedAt time.Time
}

// Registry owns every open container session, one at most per actor. All
// mutations of an open view pass through it, which makes it the single
// place container-in-container recursion is rejected.
type Registry struct {
	sessions *satchel.SyncMap[string, *session]
	store    *storage.Storage
}

// NewRegistry creates a registry. store may be nil, leaving sessions purely
// in memory with no persistence or audit trail beyond the items themselves.
func NewRegistry(store *storage.Storage) *Registry {
	return &Registry{
		sessions: satchel.NewSyncMap[string, *session](),
		store:    store,
	}
}

func (r *Registry) log(ctx context.Context, event string, data storage.AuditData) {
	if r.store != nil {
		r.store.Audit().Log(ctx, event, data)
	}
}

// SessionInfo describes one open session.
type SessionInfo struct {
	Actor    string
	Item     *structs.Item
	OpenedAt time.Time
}

// Open decodes the container's contents and opens a session on them for
// the actor, returning a snapshot of the view. An actor reopening while a
// session is still open abandons the old session WITHOUT flushing it: the
// host only delivers one view per actor, so whatever that session held was
// already written back or lost to a gesture the host never completed.
// Decode failures leave any existing session untouched.
func (r *Registry) Open(ctx context.Context, actor string, item *structs.Item) ([]structs.Stack, error) {
	var view []structs.Stack
	var err error
	r.sessions.WithLock(actor, func() {
		var slots []structs.Stack
		if slots, err = DecodeContent(item); err != nil {
			err = satchel.WithStack(err)
			return
		}
		if prior, had := r.sessions.GetHas(actor); had {
			r.log(ctx, "SESSION_REPLACE", storage.AuditSessionReplaced{
				Actor:     actor,
				Abandoned: storage.ItemRef(prior.source),
				Item:      storage.ItemRef(item),
			})
		}
		r.sessions.Set(actor, &session{
			actor:    actor,
			source:   item,
			view:     slots,
			openedAt: time.Now(),
		})
		r.log(ctx, "SESSION_OPEN", storage.AuditSessionOpened{
			Actor: actor,
			Item:  storage.ItemRef(item),
			Slots: len(slots),
		})
		view = cloneSlots(slots)
	})
	return view, err
}

// guard validates one proposed slot write against the session. Every path
// that changes a view funnels through here.
func (r *Registry) guard(ctx context.Context, sess *session, slot int, stack structs.Stack) error {
	if slot < 0 || slot >= len(sess.view) {
		r.log(ctx, "MUTATION_REJECT", storage.AuditMutationRejected{
			Actor:  sess.actor,
			Item:   storage.ItemRef(sess.source),
			Slot:   slot,
			Reason: ErrIndexOutOfRange.Error(),
		})
		return satchel.WithStack(ErrIndexOutOfRange)
	}
	if IsContainerStack(stack) {
		r.log(ctx, "MUTATION_REJECT", storage.AuditMutationRejected{
			Actor:  sess.actor,
			Item:   storage.ItemRef(sess.source),
			Slot:   slot,
			Reason: ErrRecursionRejected.Error(),
		})
		return satchel.WithStack(ErrRecursionRejected)
	}
	return nil
}

// Mutate replaces one slot of the actor's open view. The view is unchanged
// when the mutation is rejected.
func (r *Registry) Mutate(ctx context.Context, actor string, slot int, stack structs.Stack) error {
	var err error
	r.sessions.WithLock(actor, func() {
		sess, found := r.sessions.GetHas(actor)
		if !found {
			err = satchel.WithStack(ErrNoOpenSession)
			return
		}
		if err = r.guard(ctx, sess, slot, stack); err != nil {
			return
		}
		sess.view[slot] = stack.Clone()
	})
	return err
}

// MutateAll replaces several slots as one step: every proposed write is
// validated before any applies, so a rejection leaves the whole view
// unchanged.
func (r *Registry) MutateAll(ctx context.Context, actor string, changes map[int]structs.Stack) error {
	var err error
	r.sessions.WithLock(actor, func() {
		sess, found := r.sessions.GetHas(actor)
		if !found {
			err = satchel.WithStack(ErrNoOpenSession)
			return
		}
		slots := make([]int, 0, len(changes))
		for slot := range changes {
			slots = append(slots, slot)
		}
		sort.Ints(slots)
		for _, slot := range slots {
			if err = r.guard(ctx, sess, slot, changes[slot]); err != nil {
				return
			}
		}
		for _, slot := range slots {
			sess.view[slot] = changes[slot].Clone()
		}
	})
	return err
}

// Swap replaces one slot and returns what it displaced.
func (r *Registry) Swap(ctx context.Context, actor string, slot int, stack structs.Stack) (structs.Stack, error) {
	var displaced structs.Stack
	var err error
	r.sessions.WithLock(actor, func() {
		sess, found := r.sessions.GetHas(actor)
		if !found {
			err = satchel.WithStack(ErrNoOpenSession)
			return
		}
		if err = r.guard(ctx, sess, slot, stack); err != nil {
			return
		}
		displaced = sess.view[slot]
		sess.view[slot] = stack.Clone()
	})
	return displaced, err
}

// Close flushes the actor's view back onto the source item and removes the
// session. Flushing and removing are one step: when persisting the flushed
// item fails the session is gone anyway, and the failure comes back as a
// non-fatal warning with the item still carrying the new payload in memory.
func (r *Registry) Close(ctx context.Context, actor string) (warning error, err error) {
	r.sessions.WithLock(actor, func() {
		sess, found := r.sessions.GetHas(actor)
		if !found {
			err = satchel.WithStack(ErrNoOpenSession)
			return
		}
		payload := EncodeContent(sess.view)
		sess.source.SetTag(contentTagKey, payload)
		if r.store != nil {
			if saveErr := r.store.SaveItem(ctx, sess.source); saveErr != nil {
				warning = satchel.WithStack(saveErr)
			}
		}
		r.sessions.Del(actor)
		closed := storage.AuditSessionClosed{
			Actor:       actor,
			Item:        storage.ItemRef(sess.source),
			Fingerprint: storage.PayloadFingerprint(payload),
		}
		if warning != nil {
			closed.Warning = warning.Error()
		}
		r.log(ctx, "SESSION_CLOSE", closed)
	})
	return warning, err
}

// Abort removes the actor's session without flushing. Aborting when no
// session is open does nothing.
func (r *Registry) Abort(ctx context.Context, actor string) {
	r.sessions.WithLock(actor, func() {
		sess, found := r.sessions.GetHas(actor)
		if !found {
			return
		}
		r.sessions.Del(actor)
		r.log(ctx, "SESSION_ABORT", storage.AuditSessionAborted{
			Actor: actor,
			Item:  storage.ItemRef(sess.source),
		})
	})
}

// IsSessionOpen reports whether the actor has an open session.
func (r *Registry) IsSessionOpen(actor string) bool {
	return r.sessions.Has(actor)
}

// PeekSource returns the item backing the actor's open session.
func (r *Registry) PeekSource(actor string) (*structs.Item, error) {
	sess, found := r.sessions.GetHas(actor)
	if !found {
		return nil, satchel.WithStack(ErrNoOpenSession)
	}
	return sess.source, nil
}

// View returns a snapshot of the actor's open view.
func (r *Registry) View(actor string) ([]structs.Stack, error) {
	var view []structs.Stack
	var err error
	r.sessions.WithLock(actor, func() {
		sess, found := r.sessions.GetHas(actor)
		if !found {
			err = satchel.WithStack(ErrNoOpenSession)
			return
		}
		view = cloneSlots(sess.view)
	})
	return view, err
}

// Sessions lists all open sessions.
func (r *Registry) Sessions() []SessionInfo {
	infos := []SessionInfo{}
	for _, sess := range r.sessions.Each() {
		infos = append(infos, SessionInfo{
			Actor:    sess.actor,
			Item:     sess.source,
			OpenedAt: sess.openedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Actor < infos[j].Actor
	})
	return infos
}

func cloneSlots(slots []structs.Stack) []structs.Stack {
	result := make([]structs.Stack, len(slots))
	for index, slot := range slots {
		result[index] = slot.Clone()
	}
	return result
}
