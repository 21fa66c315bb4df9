package l6objects

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
)

var (
	// ErrPoisoned is returned by every call after a panic inside a
	// critical section.
	ErrPoisoned = errors.New("map document poisoned by a panic in a critical section")
	// ErrFrozen is returned when appending to a frozen document.
	ErrFrozen = errors.New("map document is frozen")
	// ErrNotFrozen is returned by post-passes that need a frozen document.
	ErrNotFrozen = errors.New("map document is not frozen")
	// ErrSymbolKind is returned when an object's geometry kind does not match
	// its symbol.
	ErrSymbolKind = errors.New("object kind does not match symbol")
)

// Document is the symbol-keyed collection of map objects shared by all tile
// workers. It is append-only until Freeze.
type Document struct {
	mu       sync.Mutex
	objects  map[Symbol][]Object
	frozen   bool
	poisoned bool
	cause    any
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{objects: make(map[Symbol][]Object)}
}

// guard runs fn with the lock held. A panic in fn poisons the document and
// is re-raised after the lock is released.
func (d *Document) guard(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.poisoned {
		return fmt.Errorf("%w: %v", ErrPoisoned, d.cause)
	}
	defer func() {
		if r := recover(); r != nil {
			d.poisoned = true
			d.cause = r
			panic(r)
		}
	}()
	return fn()
}

// Poisoned reports whether a critical section panicked.
func (d *Document) Poisoned() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poisoned
}

// Writer is the view of the document inside Update.
type Writer interface {
	ReserveCapacity(sym Symbol, n int)
	Add(obj Object) error
}

type writer struct{ d *Document }

func (w writer) ReserveCapacity(sym Symbol, n int) { w.d.reserveLocked(sym, n) }
func (w writer) Add(obj Object) error              { return w.d.addLocked(obj) }

// Update runs fn under a single lock acquisition. fn must only reserve and
// append; it must not block.
func (d *Document) Update(fn func(w Writer) error) error {
	return d.guard(func() error {
		if d.frozen {
			return ErrFrozen
		}
		return fn(writer{d})
	})
}

// ReserveCapacity makes room for n more objects of sym, so the append loop
// that follows does not reallocate.
func (d *Document) ReserveCapacity(sym Symbol, n int) error {
	return d.guard(func() error {
		if d.frozen {
			return ErrFrozen
		}
		d.reserveLocked(sym, n)
		return nil
	})
}

func (d *Document) reserveLocked(sym Symbol, n int) {
	if n <= 0 {
		return
	}
	cur := d.objects[sym]
	if cap(cur)-len(cur) >= n {
		return
	}
	grown := make([]Object, len(cur), len(cur)+n)
	copy(grown, cur)
	d.objects[sym] = grown
}

// AddObject appends obj under its symbol.
func (d *Document) AddObject(obj Object) error {
	return d.guard(func() error {
		if d.frozen {
			return ErrFrozen
		}
		return d.addLocked(obj)
	})
}

func (d *Document) addLocked(obj Object) error {
	if obj == nil {
		return errors.New("nil map object")
	}
	m := obj.meta()
	if !m.Symbol.Valid() {
		return fmt.Errorf("add object: unknown symbol %d", int(m.Symbol))
	}
	if m.Symbol.Kind() != obj.Kind() {
		return fmt.Errorf("%w: %s is %s, got %s", ErrSymbolKind, m.Symbol, m.Symbol.Kind(), obj.Kind())
	}
	d.objects[m.Symbol] = append(d.objects[m.Symbol], obj)
	return nil
}

// Freeze ends the generation phase. Further appends fail with ErrFrozen.
func (d *Document) Freeze() error {
	return d.guard(func() error {
		d.frozen = true
		return nil
	})
}

// Frozen reports whether Freeze has been called.
func (d *Document) Frozen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frozen
}

// Symbols returns the symbols holding at least one object, ascending.
func (d *Document) Symbols() []Symbol {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Symbol, 0, len(d.objects))
	for s, objs := range d.objects {
		if len(objs) > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Objects returns a copy of the object list for sym.
func (d *Document) Objects(sym Symbol) []Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Object(nil), d.objects[sym]...)
}

// Count returns the number of objects of sym.
func (d *Document) Count(sym Symbol) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects[sym])
}

// Capacity returns the reserved capacity for sym.
func (d *Document) Capacity(sym Symbol) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cap(d.objects[sym])
}

// Len returns the total number of objects.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, objs := range d.objects {
		n += len(objs)
	}
	return n
}

// Counts returns the object count per symbol.
func (d *Document) Counts() map[Symbol]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[Symbol]int, len(d.objects))
	for s, objs := range d.objects {
		if len(objs) > 0 {
			out[s] = len(objs)
		}
	}
	return out
}

// TransformGeometry replaces every object's geometry with fn's result. The
// document must be frozen. Geometry kinds must be preserved.
func (d *Document) TransformGeometry(fn func(orb.Geometry) (orb.Geometry, error)) error {
	return d.guard(func() error {
		if !d.frozen {
			return ErrNotFrozen
		}
		for _, sym := range d.sortedSymbolsLocked() {
			for _, obj := range d.objects[sym] {
				g, err := fn(obj.Geometry())
				if err != nil {
					return fmt.Errorf("transform %s object: %w", sym, err)
				}
				if err := setGeometry(obj, g); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func setGeometry(obj Object, g orb.Geometry) error {
	switch o := obj.(type) {
	case *PointObject:
		p, ok := g.(orb.Point)
		if !ok {
			return fmt.Errorf("%w: point object got %s", ErrSymbolKind, g.GeoJSONType())
		}
		o.Point = p
	case *LineObject:
		ls, ok := g.(orb.LineString)
		if !ok {
			return fmt.Errorf("%w: line object got %s", ErrSymbolKind, g.GeoJSONType())
		}
		o.Line = ls
	case *AreaObject:
		p, ok := g.(orb.Polygon)
		if !ok {
			return fmt.Errorf("%w: area object got %s", ErrSymbolKind, g.GeoJSONType())
		}
		o.Polygon = p
	}
	return nil
}

func (d *Document) sortedSymbolsLocked() []Symbol {
	out := make([]Symbol, 0, len(d.objects))
	for s := range d.objects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
