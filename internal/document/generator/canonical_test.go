package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf and cr", "a\r\nb\rc", "a\nb\nc"},
		{"trailing whitespace", "a  \t\nb  ", "a\nb"},
		{"control characters", "a\x00b\x07c\td", "abcd"},
		{"two blank lines kept", "a\n\n\nb", "a\n\n\nb"},
		{"three blank lines collapse", "a\n\n\n\nb", "a\n\nb"},
		{"many blank lines collapse", "a" + strings.Repeat("\n", 10) + "b", "a\n\nb"},
		{"whitespace-only lines are blank", "a\n \n\t\n  \nb", "a\n\nb"},
		{"control-only lines are blank", "a\n\n\n\x07\nb", "a\n\nb"},
		{"invalid utf8 dropped", "a\xffb", "ab"},
		{"zero width chars dropped", "a\u200bb", "ab"},
		{"unicode text kept", "Société Générale ß", "Société Générale ß"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.in))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"\n\n\n",
		"a\n\n\n\x07\n\n\nb",
		"line one  \r\n\r\n\r\n\r\nline two\t\r",
		"\x00\x01\x02",
		"x\n \n\n \n\ny",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		assert.Equal(t, once, Canonicalize(once), "input %q", in)
	}
}

func FuzzCanonicalizeIdempotent(f *testing.F) {
	f.Add("a\r\n\r\n\r\n\r\nb")
	f.Add("a\n\n\n\x07\n\n\nb")
	f.Add("\t  \n\n\n\n")
	f.Fuzz(func(t *testing.T, in string) {
		once := Canonicalize(in)
		if twice := Canonicalize(once); twice != once {
			t.Fatalf("not idempotent for %q: %q != %q", in, twice, once)
		}
	})
}

func TestHash(t *testing.T) {
	// sha256("") is a well-known constant.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(""))
	assert.Len(t, Hash("NDA"), 64)
	assert.Equal(t, strings.ToLower(Hash("NDA")), Hash("NDA"))
}
