package rarity

import (
	"errors"
	"fmt"
)

// RangeError reports a segment value outside [MinSegment, MaxSegment].
type RangeError struct {
	Value int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("segment value %d out of range [%d, %d]", e.Value, MinSegment, MaxSegment)
}

// IsRangeError returns true if err (or any error in its chain) is a RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// CheckSegment returns a *RangeError when v is not a valid segment value.
func CheckSegment(v int) error {
	if v < MinSegment || v > MaxSegment {
		return &RangeError{Value: v}
	}
	return nil
}
