package coreasic

import "errors"

// errInvalidAck is returned when a chain's work-frame acknowledgement
// doesn't carry the expected marker bytes.
var errInvalidAck = errors.New("coreasic: invalid work acknowledgement frame")
