package plate

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_SevenDigits(t *testing.T) {
	r, err := Normalize("1234567", "2015", DefaultQuote)
	require.NoError(t, err)
	assert.Equal(t, "1234567", r.PlateNumber)
	assert.Equal(t, 2015, r.ProductionYear)
	assert.Equal(t, 12, r.First)
	assert.Equal(t, 345, r.Second)
	assert.Equal(t, 67, r.Third)
}

func TestNormalize_EightDigits(t *testing.T) {
	r, err := Normalize("12345678", "2010", DefaultQuote)
	require.NoError(t, err)
	assert.Equal(t, 123, r.First)
	assert.Equal(t, 45, r.Second)
	assert.Equal(t, 678, r.Third)
}

func TestNormalize_ZeroPaddedSevenDigit(t *testing.T) {
	padded, err := Normalize("01234567", "2018", DefaultQuote)
	require.NoError(t, err)
	plain, err := Normalize("1234567", "2018", DefaultQuote)
	require.NoError(t, err)

	assert.Equal(t, plain, padded)
	assert.Equal(t, "1234567", padded.PlateNumber)
}

func TestNormalize_QuotedFields(t *testing.T) {
	r, err := Normalize(`"01234567"`, `"2018"`, DefaultQuote)
	require.NoError(t, err)
	assert.Equal(t, 12, r.First)
	assert.Equal(t, 345, r.Second)
	assert.Equal(t, 67, r.Third)
	assert.Equal(t, 2018, r.ProductionYear)
}

func TestNormalize_CustomQuote(t *testing.T) {
	r, err := Normalize("'12345678'", " 2001 ", '\'')
	require.NoError(t, err)
	assert.Equal(t, 123, r.First)
	assert.Equal(t, 2001, r.ProductionYear)
}

func TestNormalize_InnerSegmentZeros(t *testing.T) {
	r, err := Normalize("1000501", "1999", DefaultQuote)
	require.NoError(t, err)
	assert.Equal(t, 10, r.First)
	assert.Equal(t, 5, r.Second)
	assert.Equal(t, 1, r.Third)
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		plate string
		year  string
		field string
	}{
		{"all zeros", "0000000", "2020", "plate_number"},
		{"empty", "", "2020", "plate_number"},
		{"quoted empty", `""`, "2020", "plate_number"},
		{"too short", "12345", "2020", "plate_number"},
		{"too long", "123456789", "2020", "plate_number"},
		{"stripped to six", "00123456", "2020", "plate_number"},
		{"non numeric", "12-345-67", "2020", "plate_number"},
		{"letters", "12A4567", "2020", "plate_number"},
		{"year non numeric", "1234567", "abcd", "production_year"},
		{"year empty", "1234567", "", "production_year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.plate, tt.year, DefaultQuote)
			require.Error(t, err)
			assert.True(t, IsInvalidRecord(err))

			var ire *InvalidRecordError
			require.ErrorAs(t, err, &ire)
			assert.Equal(t, tt.field, ire.Field)
		})
	}
}

func TestNormalize_UnsupportedLengthMessage(t *testing.T) {
	_, err := Normalize("12345", "2020", DefaultQuote)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported plate length 5")
}

func TestIsInvalidRecord_Wrapped(t *testing.T) {
	_, err := Normalize("0000000", "2020", DefaultQuote)
	require.Error(t, err)

	wrapped := eris.Wrap(err, "ingest: row 4")
	assert.True(t, IsInvalidRecord(wrapped))
	assert.False(t, IsInvalidRecord(eris.New("something else")))
	assert.False(t, IsInvalidRecord(nil))
}

func TestSplit_RecomposesSevenDigits(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for range 2000 {
		n := 1_000_000 + rng.IntN(9_000_000)
		s := strconv.Itoa(n)

		first, second, third, err := Split(s)
		require.NoError(t, err)
		assert.Less(t, first, 100)
		assert.GreaterOrEqual(t, first, 10)
		assert.Less(t, second, 1000)
		assert.Less(t, third, 100)
		assert.Equal(t, n, first*100_000+second*100+third, "plate %s", s)
	}
}

func TestSplit_RecomposesEightDigits(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 8))
	for range 2000 {
		n := 10_000_000 + rng.IntN(90_000_000)
		s := strconv.Itoa(n)

		first, second, third, err := Split(s)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, first, 100)
		assert.Less(t, first, 1000)
		assert.Less(t, second, 100)
		assert.Less(t, third, 1000)
		assert.Equal(t, n, first*100_000+second*1000+third, "plate %s", s)
	}
}
