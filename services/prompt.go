package services

import (
	"fmt"
	"strings"

	"property-chatbot-api/models"
	"property-chatbot-api/pkg/citations"
)

const maxCompanyDocChars = 10000

var casualPhrases = []string{
	"hi", "hello", "hey", "how are you", "thanks",
	"thank you", "bye", "goodbye", "good morning", "good evening",
	"sup", "what's up", "wassup", "yo", "howdy", "good night",
}

var howAreVariants = []string{"how are", "how r u", "how r you", "hows it going", "how do you do"}

// IsCasual reports whether a message is small talk that needs no document
// search. Short messages of one or two words are casual only when they
// contain a casual phrase.
func IsCasual(message string) bool {
	q := strings.ToLower(strings.TrimSpace(message))
	words := strings.Fields(q)

	switch {
	case containsExact(casualPhrases, q):
		return true
	case len(words) <= 2:
		return containsAny(q, casualPhrases)
	case containsAny(q, howAreVariants):
		return true
	}
	return false
}

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

const baseSystemPrompt = `You are an AI assistant for YottaReal property management software, helping leasing agents, property managers, and district managers retrieve information.

Your role:
- Answer questions based ONLY on the provided context from documents
- Be thorough and detailed in your responses
- If information is not in the provided context, clearly state that you don't have that information
- Focus on practical, actionable information

FORMATTING REQUIREMENTS (CRITICAL):
- Do NOT use ** for bold text or any Markdown formatting
- DO use bullet points with this EXACT format:
  
  Main topic:
  - Bullet point 1 with details
  - Bullet point 2 with details
  - Bullet point 3 with details

- Each bullet point should be on its OWN line or paragraph for clarity.
- Use dashes (-) for bullet points

CRITICAL CITATION REQUIREMENT WITH PAGE NUMBERS:
When you reference information from a document, you MUST cite it using this format:
[N → Page X] where N is the document number and X is the actual page number from the PDF

Example: "According to the Move-Out Policy [1 → Page 3], residents must provide 60 days notice."

Guidelines:
- Prioritize accuracy and completeness
- Use bullet points on separate lines for easy reading
- Include relevant policy numbers or section references when available
- Provide detailed explanations with context
- For ambiguous queries, ask clarifying questions
- Always ground your answers in the provided documents
- ALWAYS include [N → Page X] citations when referencing specific information
- Make responses thorough and informative`

const uploadsAttribution = `

SOURCE ATTRIBUTION:
- When referencing UPLOADED documents, say "According to your uploaded document [N → Page X]..." or "In [document name] [N → Page X]..."
- When referencing COMPANY or BLOB STORAGE documents (policies, handbooks), say "According to [policy/handbook name] [N → Page X]..." or "Company policy [N → Page X] states..."
- Be clear about which source each piece of information comes from
- If there are multiple uploaded documents and the query is ambiguous, describe ALL of them with their [N → Page X] citations
- Provide comprehensive details from the uploaded documents in bullet format`

const defaultAttribution = `

SOURCE ATTRIBUTION:
- When referencing information, naturally mention the source with [N → Page X] citation (e.g., "According to the Move-Out Policy [1 → Page 3]..." or "As stated in the Team Member Handbook [2 → Page 15]...")
- Provide comprehensive information from the cited documents in bullet format`

// BuildSystemPrompt returns the assistant instructions. Sessions with uploads
// get attribution rules that separate user files from company documents.
func BuildSystemPrompt(hasUploads bool) string {
	if hasUploads {
		return baseSystemPrompt + uploadsAttribution
	}
	return baseSystemPrompt + defaultAttribution
}

// BuildPrompt numbers every context entry as a document, uploaded pages
// first, and returns the user prompt with the number to document mapping
// used later to renumber citations.
func BuildPrompt(query string, ctxDocs []models.ContextDoc) (string, map[int]citations.DocRef) {
	var uploaded, company []models.ContextDoc
	for _, d := range ctxDocs {
		switch d.SourceType {
		case models.SourceUploaded:
			uploaded = append(uploaded, d)
		case models.SourceCompany:
			company = append(company, d)
		}
	}

	var b strings.Builder
	mapping := map[int]citations.DocRef{}
	docNumber := 1

	add := func(d models.ContextDoc, sourceType string, truncate bool) {
		page := d.PageNumber
		if page <= 0 {
			page = 1
		}
		fmt.Fprintf(&b, "\n[Document %d - Page %d: %s]\n", docNumber, page, d.Filename)

		mapping[docNumber] = citations.DocRef{
			Filename:    d.Filename,
			Type:        sourceType,
			DownloadURL: d.DownloadURL,
		}

		content := d.Content
		if truncate {
			content = truncateRunes(content, maxCompanyDocChars)
		}
		b.WriteString(content)
		b.WriteString("\n")
		if n := len([]rune(d.Content)); truncate && n > maxCompanyDocChars {
			fmt.Fprintf(&b, "... (content truncated, original length: %d chars)\n", n)
		}
		fmt.Fprintf(&b, "(End of Document %d - Page %d)\n", docNumber, page)
		docNumber++
	}

	if len(uploaded) > 0 {
		b.WriteString("=== UPLOADED DOCUMENTS (User's Files) ===\n")
		for _, d := range uploaded {
			add(d, models.SourceUploaded, false)
		}
	}
	if len(company) > 0 {
		if len(uploaded) > 0 {
			b.WriteString("\n" + strings.Repeat("=", 60) + "\n\n")
		}
		b.WriteString("=== COMPANY DOCUMENTS (Policies, Handbooks, Procedures) ===\n")
		for _, d := range company {
			add(d, models.SourceCompany, true)
		}
	}

	prompt := fmt.Sprintf(`Context from documents:

%s

User question: %s

Answer (use bullet points on separate lines with [N → Page X] citations):`, b.String(), query)

	return prompt, mapping
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
