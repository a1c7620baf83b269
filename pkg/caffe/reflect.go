package caffe

import (
	"github.com/gomlx/exceptions"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// pmsg gives named access to the fields of a dynamic caffe message.
// Asking for a field that isn't part of the declared subset is a bug, and panics.
type pmsg struct {
	m protoreflect.Message
}

func (p pmsg) fd(name string) protoreflect.FieldDescriptor {
	fd := p.m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		exceptions.Panicf("caffe: message %s has no field %q declared", p.m.Descriptor().FullName(), name)
	}
	return fd
}

func (p pmsg) has(name string) bool {
	return p.m.Has(p.fd(name))
}

func (p pmsg) str(name string) string {
	return p.m.Get(p.fd(name)).String()
}

func (p pmsg) i64(name string) int64 {
	return p.m.Get(p.fd(name)).Int()
}

func (p pmsg) u64(name string) uint64 {
	return p.m.Get(p.fd(name)).Uint()
}

func (p pmsg) enum(name string) int32 {
	return int32(p.m.Get(p.fd(name)).Enum())
}

// msg returns the sub-message (the default, empty one if not set) and whether it was set.
func (p pmsg) msg(name string) (pmsg, bool) {
	fd := p.fd(name)
	return pmsg{p.m.Get(fd).Message()}, p.m.Has(fd)
}

func (p pmsg) list(name string) protoreflect.List {
	return p.m.Get(p.fd(name)).List()
}

func (p pmsg) strs(name string) []string {
	l := p.list(name)
	values := make([]string, l.Len())
	for ii := range values {
		values[ii] = l.Get(ii).String()
	}
	return values
}

func (p pmsg) ints(name string) []int64 {
	l := p.list(name)
	values := make([]int64, l.Len())
	for ii := range values {
		values[ii] = l.Get(ii).Int()
	}
	return values
}

func (p pmsg) uints(name string) []uint64 {
	l := p.list(name)
	values := make([]uint64, l.Len())
	for ii := range values {
		values[ii] = l.Get(ii).Uint()
	}
	return values
}

func (p pmsg) floats(name string) []float64 {
	l := p.list(name)
	values := make([]float64, l.Len())
	for ii := range values {
		values[ii] = l.Get(ii).Float()
	}
	return values
}

func (p pmsg) msgs(name string) []pmsg {
	l := p.list(name)
	values := make([]pmsg, l.Len())
	for ii := range values {
		values[ii] = pmsg{l.Get(ii).Message()}
	}
	return values
}

func (p pmsg) boolean(name string) bool {
	return p.m.Get(p.fd(name)).Bool()
}
