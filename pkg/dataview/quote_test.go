package dataview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	tbl := []struct {
		in  string
		out string
	}{
		{"users", `"users"`},
		{"user name", `"user name"`},
		{`weird"col`, `"weird""col"`},
		{`"`, `""""`},
		{"", `""`},
		{`a"b"c`, `"a""b""c"`},
	}
	for _, tc := range tbl {
		assert.Equal(t, tc.out, Quote(tc.in), "quote %q", tc.in)
	}
}
