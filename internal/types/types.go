package types

// Frame is a single command as it travels over the wire
type Frame struct {
	ID      uint64         `json:"id"`
	Command string         `json:"command,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Error is a failure as it travels over the wire
type Error struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Batch is the body of a message exchanged with the host
type Batch struct {
	Commands []Frame `json:"commands"`
}

// Envelope carries one message and its headers over a stream
type Envelope struct {
	Body    []byte `json:"body,omitempty"`
	Headers []byte `json:"headers,omitempty"`
	Error   string `json:"error,omitempty"`
}
