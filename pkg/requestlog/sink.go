package requestlog

// Sink receives request records. Add is fire-and-forget: implementations
// must return promptly and must not report errors to the caller.
type Sink interface {
	Add(rec Record)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Record)

// Add calls f(rec).
func (f SinkFunc) Add(rec Record) { f(rec) }

// Nop returns a sink that discards every record.
func Nop() Sink {
	return SinkFunc(func(Record) {})
}

type multiSink []Sink

// Multi returns a sink that forwards every record to each of sinks in order.
// Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Add(rec Record) {
	for _, s := range m {
		s.Add(rec)
	}
}
