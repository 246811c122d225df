package phone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigits(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{in: "555-123-4567", expect: "5551234567"},
		{in: "(555) 123 4567", expect: "5551234567"},
		{in: "+1 555.123.4567", expect: "15551234567"},
		{in: "", expect: ""},
		{in: "ext. 12", expect: "12"},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, Digits(test.in))
	}
}

func TestEqual(t *testing.T) {
	require.True(t, Equal("555-123-4567", "(555) 123 4567"))
	require.False(t, Equal("555-123-4567", "555-123-4568"))
	require.False(t, Equal("", ""))
	require.False(t, Equal("abc", "def"))
}
