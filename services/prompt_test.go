package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-chatbot-api/models"
)

func TestIsCasual(t *testing.T) {
	cases := map[string]bool{
		"hi":                             true,
		"  Hello ":                       true,
		"thanks!":                        true,
		"hey there":                      true,
		"good morning":                   true,
		"how are you doing today":        true,
		"hows it going with you":         true,
		"rent":                           false,
		"pet policy":                     false,
		"what is the move out policy":    false,
		"how do I submit a work order":   false,
		"which policy covers late fees?": false,
	}
	for msg, want := range cases {
		assert.Equal(t, want, IsCasual(msg), msg)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	withUploads := BuildSystemPrompt(true)
	without := BuildSystemPrompt(false)

	for _, p := range []string{withUploads, without} {
		assert.True(t, strings.HasPrefix(p, "You are an AI assistant for YottaReal property management software"))
		assert.Contains(t, p, "[N → Page X] where N is the document number")
	}
	assert.Contains(t, withUploads, `"According to your uploaded document [N → Page X]..."`)
	assert.NotContains(t, without, "UPLOADED documents")
	assert.Contains(t, without, "Team Member Handbook [2 → Page 15]")
	assert.Contains(t, without, "EXACT format:\n  \n  Main topic:")
}

func TestBuildPromptTruncatesCompanyContentOnly(t *testing.T) {
	long := strings.Repeat("a", maxCompanyDocChars+50)
	prompt, mapping := BuildPrompt("q?", []models.ContextDoc{
		{Content: long, Filename: "upload.txt", SourceType: models.SourceUploaded, PageNumber: 1},
		{Content: long, Filename: "policy.pdf", SourceType: models.SourceCompany, PageNumber: 0, DownloadURL: "https://x"},
	})

	assert.Contains(t, prompt, "[Document 1 - Page 1: upload.txt]\n"+long+"\n(End of Document 1 - Page 1)")
	assert.Contains(t, prompt, "[Document 2 - Page 1: policy.pdf]")
	assert.Contains(t, prompt, "... (content truncated, original length: 10050 chars)")
	assert.Contains(t, prompt, strings.Repeat("=", 60))
	assert.True(t, strings.HasSuffix(prompt, "User question: q?\n\nAnswer (use bullet points on separate lines with [N → Page X] citations):"))

	require.Len(t, mapping, 2)
	assert.Equal(t, models.SourceUploaded, mapping[1].Type)
	assert.Equal(t, "policy.pdf", mapping[2].Filename)
	assert.Equal(t, "https://x", mapping[2].DownloadURL)
}

func TestBuildPromptWithoutUploadsHasNoSeparator(t *testing.T) {
	prompt, mapping := BuildPrompt("q", []models.ContextDoc{
		{Content: "c", Filename: "p.pdf", SourceType: models.SourceCompany, PageNumber: 2},
	})
	assert.NotContains(t, prompt, "UPLOADED DOCUMENTS")
	assert.NotContains(t, prompt, strings.Repeat("=", 60))
	assert.Len(t, mapping, 1)
}

func TestBuildPromptEmptyContext(t *testing.T) {
	prompt, mapping := BuildPrompt("hello", nil)
	assert.Empty(t, mapping)
	assert.True(t, strings.HasPrefix(prompt, "Context from documents:\n\n\n\nUser question: hello"))
}
