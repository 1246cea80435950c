package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_Prefixes(t *testing.T) {
	g := New()

	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"conversation", g.GenerateConversationID, "hc_"},
		{"message", g.GenerateMessageID, "hm_"},
		{"attachment", g.GenerateAttachmentID, "hf_"},
		{"local message", g.GenerateLocalMessageID, "lm_"},
		{"local reply", g.GenerateLocalReplyID, "la_"},
		{"notice", g.GenerateNoticeID, "ls_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.Len(t, got, len(tt.prefix)+21)
		})
	}
}

func TestGenerator_Unique(t *testing.T) {
	g := New()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := g.GenerateLocalMessageID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
