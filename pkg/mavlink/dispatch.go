package mavlink

import (
	"sync"
	"time"
)

// waitCond is a registered intent to be woken when a packet named Name
// arrives whose content matches every (field, value) pair in Predicate.
type waitCond struct {
	name      string
	predicate map[string]Value
	signaled  bool
}

// dispatcher is the thread-safe receive side of a Connection: the last-
// value recv pool, the append-only keep pool, the wait-condition registry,
// and the parameter-type cache, all protected by one mutex and one
// condition variable as required by the single-reader/many-waiter model.
type dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	schema *Schema

	recvPool map[string]*Packet
	keepPool map[string][]*Packet
	keepAll  map[string]bool

	waits []*waitCond

	paramTypeCache map[string]int64

	closed  bool
	closeErr error
}

func newDispatcher(schema *Schema) *dispatcher {
	d := &dispatcher{
		schema:         schema,
		recvPool:       make(map[string]*Packet),
		keepPool:       make(map[string][]*Packet),
		keepAll:        make(map[string]bool),
		paramTypeCache: make(map[string]int64),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// dispatch applies a freshly decoded Packet to the pools and wait registry
// under a single critical section, per spec §4.5.
func (d *dispatcher) dispatch(pkt *Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recvPool[pkt.Message.Name] = pkt

	if d.keepAll[pkt.Message.Name] {
		d.keepPool[pkt.Message.Name] = append(d.keepPool[pkt.Message.Name], pkt)
	}

	if pkt.Message.Name == "PARAM_VALUE" {
		if id, ok := pkt.Content["param_id"]; ok {
			if ptype, ok := pkt.Content["param_type"]; ok {
				if idText, ok := id.Text(); ok {
					if typeVal, ok := d.resolveEnumInt("MAV_PARAM_TYPE", ptype); ok {
						d.paramTypeCache[idText] = typeVal
					}
				}
			}
		}
	}

	for _, w := range d.waits {
		if w.name != pkt.Message.Name {
			continue
		}
		if matchesPredicate(d.schema, pkt.Message, pkt.Content, w.predicate) {
			w.signaled = true
		}
	}

	d.cond.Broadcast()
}

// resolveEnumInt returns the numeric value behind v, resolving a symbolic
// EnumNameValue (the form DecodePayload always produces for an enum-bound
// field) back through enumName. Values already numeric pass through
// unchanged, so hand-built Packets in tests work the same as decoded ones.
func (d *dispatcher) resolveEnumInt(enumName string, v Value) (int64, bool) {
	return enumInt(d.schema, enumName, v)
}

// enumInt returns the numeric value behind v for the named enum, resolving
// a symbolic EnumNameValue (the form DecodePayload always produces for an
// enum-bound field) back through schema. Values already numeric pass
// through unchanged. This is shared by the dispatcher's param-type cache
// and by any caller (production or test) that needs the MAV_CMD/MAV_PARAM_TYPE
// number behind a decoded packet field rather than its symbol.
func enumInt(schema *Schema, enumName string, v Value) (int64, bool) {
	if v.Kind() != KindEnumName {
		return v.Int()
	}
	if schema == nil {
		return 0, false
	}
	enum, ok := schema.Enums[enumName]
	if !ok {
		return 0, false
	}
	name, _ := v.Text()
	entry, ok := enum.EntryByName(name)
	if !ok {
		return 0, false
	}
	return entry.Value, true
}

// matchesPredicate reports whether content satisfies every (field, value)
// pair in predicate. Enum-bound fields in msg are resolved to their
// symbolic entry name on both sides before comparing, so a numeric
// predicate (as built by callers like CommandLong) matches a packet that
// DecodePayload already decoded to an EnumNameValue symbol.
func matchesPredicate(schema *Schema, msg *Message, content map[string]Value, predicate map[string]Value) bool {
	for field, want := range predicate {
		got, ok := content[field]
		if !ok {
			return false
		}
		if f, ok := msg.FieldByName(field); ok && f.EnumName != "" && f.Display != "bitmask" {
			if enum, ok := schema.Enums[f.EnumName]; ok {
				got = resolveEnumSymbol(enum, got)
				want = resolveEnumSymbol(enum, want)
			}
		}
		if !got.Equal(want) {
			return false
		}
	}
	return true
}

// resolveEnumSymbol normalises v to its symbolic entry name in enum,
// whichever numeric/symbolic form it already carries. A value with no
// matching entry is returned unchanged.
func resolveEnumSymbol(enum *Enum, v Value) Value {
	if v.Kind() == KindEnumName {
		return v
	}
	iv, ok := v.Int()
	if !ok {
		return v
	}
	entry, ok := enum.EntryByValue(iv)
	if !ok {
		return v
	}
	return EnumNameValue(entry.Name)
}

// closeWithErr marks the dispatcher closed and wakes every waiter so they
// observe err instead of blocking forever. Only the first call takes effect.
func (d *dispatcher) closeWithErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.closeErr = err
	d.cond.Broadcast()
}

// setKeepAll enables or disables keep-pool accumulation for a message name.
func (d *dispatcher) setKeepAll(name string, enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if enabled {
		d.keepAll[name] = true
	} else {
		delete(d.keepAll, name)
		delete(d.keepPool, name)
	}
}

// keptCount returns how many packets are currently accumulated for name.
func (d *dispatcher) keptCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keepPool[name])
}

// keptSnapshot returns a copy of the packets currently kept for name, in
// arrival order.
func (d *dispatcher) keptSnapshot(name string) []*Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Packet, len(d.keepPool[name]))
	copy(out, d.keepPool[name])
	return out
}

// clearRecv removes any stale last-value entry for name, so a subsequent
// wait observes only packets that arrive after this point.
func (d *dispatcher) clearRecv(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recvPool, name)
}

// cachedParamType returns the last known param_type for a parameter name.
func (d *dispatcher) cachedParamType(name string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.paramTypeCache[name]
	return v, ok
}

// waitFor registers a wait-condition for name/predicate, blocks until it is
// signaled or the timeout elapses, and returns the recv-pool content for
// name on success. The condition is always removed before returning.
func (d *dispatcher) waitFor(name string, predicate map[string]Value, timeout time.Duration) (*Packet, error) {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return nil, d.closeErr
	}

	w := &waitCond{name: name, predicate: predicate}
	d.waits = append(d.waits, w)
	defer d.removeWait(w)

	deadline := time.Now().Add(timeout)

	for !w.signaled && !d.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			d.mu.Unlock()
			return nil, ErrTimeout
		}
		if !condWaitTimeout(d.cond, remaining) {
			d.mu.Unlock()
			return nil, ErrTimeout
		}
	}

	if d.closed && !w.signaled {
		err := d.closeErr
		d.mu.Unlock()
		return nil, err
	}

	pkt := d.recvPool[name]
	d.mu.Unlock()
	return pkt, nil
}

// removeWait drops w from the registry; safe to call even if it was never
// signaled.
func (d *dispatcher) removeWait(w *waitCond) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.waits {
		if existing == w {
			d.waits = append(d.waits[:i], d.waits[i+1:]...)
			break
		}
	}
}

// condWaitTimeout blocks on cond (whose Lock is already held by the
// caller) until Broadcast or the timeout elapses, mirroring sync.Cond.Wait
// but with a bound. It returns false if the timeout fired first. On
// return, cond.L is held again, matching sync.Cond.Wait's contract.
func condWaitTimeout(cond *sync.Cond, timeout time.Duration) bool {
	woke := make(chan struct{})
	timedOut := make(chan struct{})

	timer := time.AfterFunc(timeout, func() {
		close(timedOut)
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()

	go func() {
		cond.Wait()
		close(woke)
	}()

	<-woke
	select {
	case <-timedOut:
		return false
	default:
		return true
	}
}
