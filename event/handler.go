package event

import (
	"reflect"
)

// Handler receives events delivered to a listener.
//
// Three call shapes are supported, mirroring the callback variants the bus
// accepts:
//
//   - a plain function, via HandlerFunc
//   - a function with a bound argument, via HandlerWithArg
//   - a bound handler object, i.e. any type implementing Handler directly
//
// Handler identity matters: Listen deduplicates registrations and Ignore
// locates them by comparing handlers. Function shapes compare by code
// pointer (plus the bound argument, for HandlerWithArg). Handler objects
// compare with ==, so a pointer receiver identifies the registration.
type Handler interface {
	HandleEvent(evt Event)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(evt Event)

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(evt Event) { f(evt) }

// HandlerWithArg binds an opaque argument to a function, passing it on every
// delivery. The argument also participates in handler identity.
func HandlerWithArg(fn func(evt Event, arg any), arg any) Handler {
	if fn == nil {
		return nil
	}
	return &argHandler{fn: fn, arg: arg}
}

type argHandler struct {
	fn  func(evt Event, arg any)
	arg any
}

func (h *argHandler) HandleEvent(evt Event) { h.fn(evt, h.arg) }

// HandlersEqual reports whether two handlers identify the same registration.
//
// Funcs are not comparable in Go, so the function shapes are compared by
// their code pointers, the same way the registration would be identified in
// a function-pointer based implementation. Handler objects fall back to ==.
func HandlersEqual(a, b Handler) bool {
	if a == nil || b == nil {
		return a == b
	}

	switch ah := a.(type) {
	case HandlerFunc:
		bh, ok := b.(HandlerFunc)
		return ok && funcPointer(ah) == funcPointer(bh)

	case *argHandler:
		bh, ok := b.(*argHandler)
		return ok && funcPointer(ah.fn) == funcPointer(bh.fn) && ah.arg == bh.arg

	default:
		// Bound handler objects: comparable interface values identify the
		// registration. Guard against panics on non-comparable types.
		if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
			return false
		}
		return a == b
	}
}

func funcPointer(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
