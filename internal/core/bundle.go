package core

import "net/http"

// RouteKey identifies one entry of a Handler Bundle's route table.
type RouteKey struct {
	Method string
	Path   string // "/" or "/{id}"
}

// Bundle is the set of compiled handlers that together implement the CRUD
// surface of one table (§3, §4.5). Readers of the code-plane cache see
// either a fully-built Bundle or none at all — it is never mutated after
// construction, only replaced wholesale.
type Bundle struct {
	Table   *TableDescriptor
	Version VersionToken
	Routes  map[RouteKey]http.HandlerFunc
}

// Route looks up the handler for a (method, path pattern) pair.
func (b *Bundle) Route(method, path string) (http.HandlerFunc, bool) {
	h, ok := b.Routes[RouteKey{Method: method, Path: path}]
	return h, ok
}
