// Package bind keeps typed values synchronized with stored entries.
//
// A Binding wraps one key of one collection: reads come from memory,
// writes update memory immediately and are persisted in the background
// once the value stops changing for a debounce period. This makes a
// binding suitable for values that change in bursts, such as UI state or
// counters:
//
//	counter := bind.New(bind.Options[int]{
//		Key:     "counter",
//		Default: 0,
//	})
//	defer counter.Close()
//
//	counter.Update(func(n int) int { return n + 1 })
//
// Values are encoded with a pluggable codec, JSON by default.
package bind
