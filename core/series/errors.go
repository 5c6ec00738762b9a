package series

import "errors"

// ErrDataInsufficient indicates there are not enough historical points to
// align, window or train.
var ErrDataInsufficient = errors.New("insufficient data")
