package kvmirror

import (
	"maps"
	"sync"
)

// Props is the map of derived properties handed to a view.
type Props map[string]any

// Binding maps a set of keys of one store to props.
type Binding struct {
	Store      *Store
	Keys       []string
	MapToProps func(values []Value) Props
}

// View keeps props derived from one or more bindings up to date while
// mounted. Updates are delivered to the callback given to NewView.
type View struct {
	bindings []Binding
	onUpdate func(Props)

	mu      sync.Mutex
	values  [][]Value
	props   Props
	subs    []*Subscription
	mounted bool
}

// NewView computes the initial props of every binding from the mirrors.
// Later bindings win on conflicting names.
func NewView(onUpdate func(Props), bindings ...Binding) *View {
	v := &View{
		bindings: bindings,
		onUpdate: onUpdate,
	}
	v.load()
	return v
}

// load reads every bound key and recomputes props. Callers hold mu or own v.
func (v *View) load() {
	v.values = make([][]Value, len(v.bindings))
	props := make(Props)
	for i, b := range v.bindings {
		pairs := b.Store.MultiGet(b.Keys...)
		vals := make([]Value, len(pairs))
		for j, p := range pairs {
			vals[j] = p.Value
		}
		v.values[i] = vals
		maps.Copy(props, b.MapToProps(vals))
	}
	v.props = props
}

// Props returns a copy of the current props.
func (v *View) Props() Props {
	v.mu.Lock()
	defer v.mu.Unlock()
	return maps.Clone(v.props)
}

// Mount subscribes one listener per bound key and rereads the bound
// values, so changes made while unmounted are picked up. Mounting twice is
// a no-op.
func (v *View) Mount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mounted {
		return
	}
	v.mounted = true
	for i, b := range v.bindings {
		for j, key := range b.Keys {
			v.subs = append(v.subs, b.Store.AddListener(key, v.listener(i, j)))
		}
	}
	// Listeners block on mu until the reread is done.
	v.load()
}

// Unmount removes every listener added by Mount.
func (v *View) Unmount() {
	v.mu.Lock()
	subs := v.subs
	v.subs = nil
	v.mounted = false
	v.mu.Unlock()

	for _, s := range subs {
		s.Remove()
	}
}

func (v *View) listener(bindingIdx, keyIdx int) Listener {
	return func(value Value) {
		v.mu.Lock()
		if !v.mounted {
			v.mu.Unlock()
			return
		}
		v.values[bindingIdx][keyIdx] = value
		snapshot := append([]Value(nil), v.values[bindingIdx]...)
		v.mu.Unlock()

		derived := v.bindings[bindingIdx].MapToProps(snapshot)

		v.mu.Lock()
		if !v.mounted {
			v.mu.Unlock()
			return
		}
		next := maps.Clone(v.props)
		maps.Copy(next, derived)
		v.props = next
		v.mu.Unlock()

		if v.onUpdate != nil {
			v.onUpdate(maps.Clone(next))
		}
	}
}
