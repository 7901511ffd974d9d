package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFormat_Valid(t *testing.T) {
	f := NewIDFormat("")

	tests := []struct {
		id   string
		want bool
	}{
		{"BGHSA-2010-00042", true},
		{"BGHSA-1999-99999", true},
		{"bghsa-2010-00042", false},
		{"BGHSA-2010-0042", false},
		{"BGHSA-10-00042", false},
		{"BGHSA-2010-00042 ", false},
		{"XYZ-2010-00042", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Valid(tt.id))
		})
	}
}

func TestIDFormat_CustomPrefix(t *testing.T) {
	f := NewIDFormat(" alu ")
	assert.Equal(t, "ALU", f.Prefix())
	assert.True(t, f.Valid("ALU-2020-00001"))
	assert.False(t, f.Valid("BGHSA-2020-00001"))
}

func TestIDFormat_FormatParse(t *testing.T) {
	f := NewIDFormat("BGHSA")

	id, err := f.Format(2010, 42)
	require.NoError(t, err)
	assert.Equal(t, "BGHSA-2010-00042", id)

	year, seq, err := f.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, 2010, year)
	assert.Equal(t, 42, seq)

	_, _, err = f.Parse("BGHSA-2010")
	assert.ErrorIs(t, err, ErrInvalidRegistrationID)
}

func TestIDFormat_FormatOutOfRange(t *testing.T) {
	f := NewIDFormat("")

	_, err := f.Format(99, 1)
	assert.ErrorIs(t, err, ErrInvalidRegistrationID)

	_, err = f.Format(2010, 100000)
	assert.ErrorIs(t, err, ErrInvalidRegistrationID)
}
