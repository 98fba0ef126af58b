package api

import "errors"

// ErrNotReady signals that a referenced symbol has not been resolved by the
// host checker yet. The whole class scan aborts without committing metadata
// and the host retries the class in a later pass.
var ErrNotReady = errors.New("referenced symbol is not ready")
