package normalize

// ParsedUpdate is the interpretation of one inbound message.
//
// The set of implementations is closed: ContextUpdate, LegacyUpdate and
// RawPassthrough. Consumers switch on the concrete type and must handle all
// three; the unexported marker keeps other packages from adding a fourth.
type ParsedUpdate interface {
	parsedUpdate()
}

// ContextUpdate is a new-format room message: topic "{root}/{contextId}"
// carrying a JSON object.
type ContextUpdate struct {
	ContextID string

	// Fields maps each payload key to its stringified value.
	Fields map[string]string
}

// LegacyUpdate is a state-affecting legacy message on
// "{root}/{context}/{device}/{set|control|state|status}".
type LegacyUpdate struct {
	// StateKey is always "{root}/{context}/{device}/state".
	StateKey string
	Value    string
}

// RawPassthrough is any message that matched neither format, including
// malformed new-format payloads.
type RawPassthrough struct {
	Topic string
	Value string
}

func (ContextUpdate) parsedUpdate()  {}
func (LegacyUpdate) parsedUpdate()   {}
func (RawPassthrough) parsedUpdate() {}

// Kind names the variant, for logs and wire events.
func Kind(u ParsedUpdate) string {
	switch u.(type) {
	case ContextUpdate:
		return "context"
	case LegacyUpdate:
		return "legacy"
	case RawPassthrough:
		return "raw"
	default:
		return "unknown"
	}
}
