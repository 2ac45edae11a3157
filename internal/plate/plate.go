// Package plate normalizes raw registration fields into a segmented plate record.
package plate

import (
	"strconv"
	"strings"

	"github.com/sells-group/plates-cli/internal/model"
)

// DefaultQuote is the wrapper character used by the registry export.
const DefaultQuote = '"'

// Plate layouts. Older plates carry 7 digits, newer ones 8.
const (
	OldLength = 7
	NewLength = 8
)

// widths maps a digit count to the widths of its three segments.
var widths = map[int][3]int{
	OldLength: {2, 3, 2},
	NewLength: {3, 2, 3},
}

// Normalize converts a raw plate field and production year field into a PlateRecord.
// Wrapping quote characters and whitespace are trimmed; leading zeros are dropped
// because the export zero-pads 7 digit plates to 8 characters.
func Normalize(plateField, yearField string, quote rune) (model.PlateRecord, error) {
	digits := strings.TrimLeft(unwrap(plateField, quote), "0")
	if digits == "" {
		return model.PlateRecord{}, &InvalidRecordError{Field: "plate_number", Value: plateField, Reason: "empty plate number"}
	}
	if !isDigits(digits) {
		return model.PlateRecord{}, &InvalidRecordError{Field: "plate_number", Value: plateField, Reason: "plate number is not numeric"}
	}

	first, second, third, err := Split(digits)
	if err != nil {
		return model.PlateRecord{}, err
	}

	rawYear := unwrap(yearField, quote)
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return model.PlateRecord{}, &InvalidRecordError{Field: "production_year", Value: yearField, Reason: "production year is not numeric"}
	}

	return model.PlateRecord{
		ProductionYear: year,
		PlateNumber:    digits,
		First:          first,
		Second:         second,
		Third:          third,
	}, nil
}

// Split decomposes a stripped digit string into its three segments.
func Split(digits string) (first, second, third int, err error) {
	w, ok := widths[len(digits)]
	if !ok {
		return 0, 0, 0, &InvalidRecordError{
			Field:  "plate_number",
			Value:  digits,
			Reason: "unsupported plate length " + strconv.Itoa(len(digits)),
		}
	}

	var parts [3]int
	pos := 0
	for i, n := range w {
		v, err := strconv.Atoi(digits[pos : pos+n])
		if err != nil {
			return 0, 0, 0, &InvalidRecordError{Field: "plate_number", Value: digits, Reason: "plate number is not numeric"}
		}
		parts[i] = v
		pos += n
	}
	return parts[0], parts[1], parts[2], nil
}

func unwrap(s string, quote rune) string {
	s = strings.TrimSpace(s)
	if quote == 0 {
		quote = DefaultQuote
	}
	return strings.TrimSpace(strings.Trim(s, string(quote)))
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
