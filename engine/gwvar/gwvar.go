// Package gwvar publishes process variables through expvar, served at /debug/vars of the HTTP server.
package gwvar

import "expvar"

// Bool is a bool expvar
type Bool struct {
	val *expvar.Int
}

// NewBool creates and publishes a Bool
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

// PublishFunc publishes the result of f, evaluated at every read of /debug/vars
func PublishFunc(name string, f func() interface{}) {
	expvar.Publish(name, expvar.Func(f))
}

var (
	// IsServing is set while the sync service accepts observers
	IsServing = NewBool("IsServing")
)
