// Package codec centralizes payload encoding for cached computation results.
//
// Cached payloads outlive the process that wrote them, so codec selection is
// a compatibility boundary: bytes written by one codec may not decode with
// another. The disk manifest records the codec name per store; a store
// reopened under a different codec discards its stale entries.
package codec

// Codec encodes/decodes computation results.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used when none is configured.
var Default Codec = GoJSON{}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}
