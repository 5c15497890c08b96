package scanning

import (
	"fmt"
	"strings"
)

// transcriptionPrompt is the shared prompt used by all LLM providers. The
// model acts as a plain OCR engine; field extraction stays in Extract so
// every recognizer feeds the same parser.
const transcriptionPrompt = `You are an OCR engine. The image is a scanned invoice, usually written in French.

Transcribe every piece of text you can read, exactly as printed:
- Keep the original line breaks; one printed line per output line
- Keep labels such as "Facture", "Fournisseur", "Date", "Total" and "TVA" with their values on the same line
- Keep numbers exactly as printed, including commas used as decimal separators
- For item tables, write each row on a single line: quantity, description, unit price, total price
- Do not translate, summarize, correct or reformat anything
- Do not add any commentary before or after the text
- Do not use markdown code blocks`

// cleanTranscript strips the wrappers LLMs sometimes put around a
// transcription and normalizes line endings
func cleanTranscript(text string) (string, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl != -1 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(text, "```")

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return text, nil
}
