package id

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes tell at a glance where an id was minted.
const (
	PrefixConversation = "hc"
	PrefixMessage      = "hm"
	PrefixLocalMessage = "lm"
	PrefixLocalReply   = "la"
	PrefixNotice       = "ls"
	PrefixAttachment   = "hf"
)

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.New(21)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateConversationID() string {
	return g.generate(PrefixConversation)
}

// GenerateMessageID mints server-side message ids for the ticket store.
func (g *Generator) GenerateMessageID() string {
	return g.generate(PrefixMessage)
}

func (g *Generator) GenerateAttachmentID() string {
	return g.generate(PrefixAttachment)
}

// GenerateLocalMessageID names an optimistic user message until its server
// copy arrives.
func (g *Generator) GenerateLocalMessageID() string {
	return g.generate(PrefixLocalMessage)
}

// GenerateLocalReplyID names an assistant reply applied from the direct
// response.
func (g *Generator) GenerateLocalReplyID() string {
	return g.generate(PrefixLocalReply)
}

// GenerateNoticeID names a synthetic system notice that only exists on this
// client.
func (g *Generator) GenerateNoticeID() string {
	return g.generate(PrefixNotice)
}
