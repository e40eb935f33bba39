package ports

import (
	"context"
	"sync"

	"wsagent/pkg/logging"
)

const subsystem = "Reconciler"

// Port is the identity-stable handle of one local port. The reconciler
// keeps the same *Port for as long as the port appears in consecutive
// snapshots and overwrites its status in place, so observers holding a
// handle see updates rather than replacements. Handles are read-only.
type Port struct {
	owner  *Reconciler
	number uint32
	status Status
}

// Number returns the local port number.
func (p *Port) Number() uint32 {
	return p.number
}

// Status returns a copy of the port's latest status. For a port that has
// been removed it is the last status seen.
func (p *Port) Status() Status {
	p.owner.mu.RLock()
	defer p.owner.mu.RUnlock()
	return p.status.Clone()
}

// Edge is emitted when a port enters the exposed-and-served state. It
// carries the status at the time of the transition.
type Edge struct {
	Port   *Port
	Status Status
}

// Diff is the outcome of applying one snapshot.
type Diff struct {
	Added   []*Port
	Updated []*Port
	Removed []*Port
	Edges   []Edge
}

// Empty reports whether the snapshot changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0 && len(d.Edges) == 0
}

// Reconciler turns full port snapshots into a table of ports and the
// changes between consecutive snapshots.
type Reconciler struct {
	mu      sync.RWMutex
	index   map[uint32]*Port
	order   []*Port
	changed chan struct{}
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		index:   make(map[uint32]*Port),
		changed: make(chan struct{}),
	}
}

// ApplySnapshot replaces the table with the given snapshot. Ports keep
// their arrival order; new ports are appended in snapshot order. When a
// snapshot lists a port more than once, the last entry wins.
func (r *Reconciler) ApplySnapshot(snapshot []Status) Diff {
	entries := collapse(snapshot)

	r.mu.Lock()
	var diff Diff
	seen := make(map[uint32]struct{}, len(entries))
	for _, st := range entries {
		seen[st.LocalPort] = struct{}{}

		p, ok := r.index[st.LocalPort]
		if !ok {
			p = &Port{owner: r, number: st.LocalPort}
			r.index[st.LocalPort] = p
			r.order = append(r.order, p)
			diff.Added = append(diff.Added, p)
		}
		wasExposedServed := ok && p.status.ExposedServed()
		changed := ok && !p.status.equal(st)

		p.status = st.Clone()

		if changed {
			diff.Updated = append(diff.Updated, p)
		}
		if p.status.ExposedServed() && !wasExposedServed {
			diff.Edges = append(diff.Edges, Edge{Port: p, Status: p.status.Clone()})
		}
	}

	if len(seen) != len(r.order) {
		kept := r.order[:0]
		for _, p := range r.order {
			if _, ok := seen[p.number]; ok {
				kept = append(kept, p)
				continue
			}
			delete(r.index, p.number)
			diff.Removed = append(diff.Removed, p)
		}
		for i := len(kept); i < len(r.order); i++ {
			r.order[i] = nil
		}
		r.order = kept
	}

	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	if !diff.Empty() {
		logging.Debug(subsystem, "Applied snapshot: %d added, %d updated, %d removed, %d newly open",
			len(diff.Added), len(diff.Updated), len(diff.Removed), len(diff.Edges))
	}
	return diff
}

// collapse drops invalid entries and folds duplicates into the position of
// their first occurrence.
func collapse(snapshot []Status) []Status {
	out := make([]Status, 0, len(snapshot))
	pos := make(map[uint32]int, len(snapshot))
	for _, st := range snapshot {
		if st.LocalPort == 0 {
			logging.Debug(subsystem, "Ignoring snapshot entry without a local port")
			continue
		}
		if i, ok := pos[st.LocalPort]; ok {
			out[i] = st
			continue
		}
		pos[st.LocalPort] = len(out)
		out = append(out, st)
	}
	return out
}

// Ports returns the current table in arrival order.
func (r *Reconciler) Ports() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, len(r.order))
	for i, p := range r.order {
		out[i] = p.status.Clone()
	}
	return out
}

// Handles returns the identity-stable handles in arrival order.
func (r *Reconciler) Handles() []*Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Port(nil), r.order...)
}

// Get returns the status of a port, if known.
func (r *Reconciler) Get(port uint32) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.index[port]
	if !ok {
		return Status{}, false
	}
	return p.status.Clone(), true
}

// Len returns the number of known ports.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ExposedPorts returns the local ports that are exposed and served, in
// arrival order.
func (r *Reconciler) ExposedPorts() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []uint32
	for _, p := range r.order {
		if p.status.ExposedServed() {
			out = append(out, p.number)
		}
	}
	return out
}

// Await blocks until the port's status satisfies cond or ctx ends. The
// condition is checked against the current table first and then after
// every snapshot.
func (r *Reconciler) Await(ctx context.Context, port uint32, cond func(Status) bool) (Status, error) {
	for {
		r.mu.RLock()
		p, ok := r.index[port]
		var st Status
		if ok {
			st = p.status.Clone()
		}
		changed := r.changed
		r.mu.RUnlock()

		if ok && cond(st) {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-changed:
		}
	}
}

// ResolveURL returns the external URL of a port, waiting for a snapshot
// that exposes it if necessary. The wait ends with ctx.
func (r *Reconciler) ResolveURL(ctx context.Context, port uint32) (string, error) {
	st, err := r.Await(ctx, port, func(s Status) bool { return s.Exposed != nil })
	if err != nil {
		return "", err
	}
	return st.Exposed.URL, nil
}
