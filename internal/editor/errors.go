package editor

import "fmt"

// The editor distinguishes three failure classes. Validation failures
// come from internal/structure and never reach the network. The two
// below classify what came back from the store.

// ServerError means the store rejected the operation and said why.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string { return e.Msg }

// NetworkError means the store could not be reached or answered with
// something that is not part of the contract.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error de comunicación en %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("error de comunicación en %s", e.Op)
}

func (e *NetworkError) Unwrap() error { return e.Err }
