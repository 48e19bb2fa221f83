package httputil

import (
	"errors"
	"fmt"
	"io"
)

// ErrBodyTooLarge is returned by ReadAllStrict when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadAllStrict reads r fully and fails if more than limit bytes are available.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// ReadAllWithLimit reads at most limit bytes and reports whether the input was
// longer than that.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("invalid read limit %d", limit)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}
