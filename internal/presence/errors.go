package presence

import "errors"

var ErrEmptyID = errors.New("presence: user id and handle id are required")
