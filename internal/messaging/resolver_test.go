package messaging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInboundCommandMatchesAcceptAndDecline(t *testing.T) {
	cases := []struct {
		text       string
		wantMatch  bool
		wantAccept bool
		wantPrefix string
	}{
		{"YES abcdef01", true, true, "abcdef01"},
		{"no abcdef0123456789", true, false, "abcdef0123456789"},
		{"  YES abcdef01  ", true, true, "abcdef01"},
		{"yes abcdef01 please fill it", true, true, "abcdef01"},
		{"maybe abcdef01", false, false, ""},
		{"YES short", false, false, ""},
		{"YES", false, false, ""},
	}

	for _, c := range cases {
		text := strings.TrimSpace(c.text)
		match := inboundCommand.FindStringSubmatch(text)
		if !c.wantMatch {
			assert.Nil(t, match, "text %q should not match", c.text)
			continue
		}
		if assert.NotNil(t, match, "text %q should match", c.text) {
			accept := strings.EqualFold(match[1], "YES")
			prefix := strings.ToLower(match[2])
			assert.Equal(t, c.wantAccept, accept)
			assert.Equal(t, c.wantPrefix, prefix)
		}
	}
}
