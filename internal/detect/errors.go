package detect

import "errors"

var (
	// ErrContractViolation marks input that breaks a caller contract, such as a
	// sample batch whose frame count disagrees with its samples. The offending
	// input is rejected whole.
	ErrContractViolation = errors.New("contract violation")

	// ErrConfiguration marks invalid construction parameters. It is only
	// returned before a session starts.
	ErrConfiguration = errors.New("invalid configuration")
)
