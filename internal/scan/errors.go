package scan

import "errors"

var ErrInvalidRequest = errors.New("scan: invalid request")
