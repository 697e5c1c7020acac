package vm

// HostFunction is a host-supplied callback bound to an import. It
// receives the callee's arguments in push order (args[0] is the first
// argument pushed) and returns the single i32 result; the engine
// discards the return value when the import's type declares zero
// results.
//
// A host function that needs access to linear memory or other VM
// state must close over a *VM reference captured at registration time
// — never reconstruct it from args, which is not a valid pointer into
// anything but the operand stack.
type HostFunction func(args []int32) int32

// Resolver resolves an import's (module, field) pair to a host
// callback. BindAll is a convenience for embedders that want to
// register an entire host environment at once instead of calling Bind
// per import.
type Resolver interface {
	Resolve(module, field string) (HostFunction, bool)
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(module, field string) (HostFunction, bool)

func (f ResolverFunc) Resolve(module, field string) (HostFunction, bool) { return f(module, field) }

// Bind attaches fn to the import whose (module, field) pair matches.
// It linear-scans the import table, matching the wire format's own
// lack of any faster lookup structure; if no import matches, Bind is a
// no-op. An unbound import only becomes an error if something tries
// to call it.
func (vm *VM) Bind(module, field string, fn HostFunction) {
	for i := range vm.module.Imports {
		imp := &vm.module.Imports[i]
		if imp.ModuleName == module && imp.FieldName == field {
			vm.hostFuncs[i] = fn
		}
	}
}

// BindAll calls Bind for every function import that r resolves,
// leaving unresolved imports null (they trap only if actually called).
func (vm *VM) BindAll(r Resolver) {
	for i := range vm.module.Imports {
		imp := &vm.module.Imports[i]
		if fn, ok := r.Resolve(imp.ModuleName, imp.FieldName); ok {
			vm.hostFuncs[i] = fn
		}
	}
}
