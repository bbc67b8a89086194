package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	emptyTemplateErrorFormat      = "prompt template %s is empty"
	missingPlaceholderErrorFormat = "prompt template %s has no [placeholder] and no prompt_key is configured"
	templateReadErrorFormat       = "read prompt template %s: %w"
)

// Placeholders are bracketed tokens, e.g. "[expression here]".
var placeholderPattern = regexp.MustCompile(`\[[^\]]+\]`)

// Template is a prompt with a single substitution placeholder.
type Template struct {
	Text        string
	Placeholder string
}

// Parse builds a template from raw text. The placeholder is the first
// bracketed token in the text; fallbackKey is used when the text has none.
func Parse(reference string, text string, fallbackKey string) (Template, error) {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return Template{}, fmt.Errorf(emptyTemplateErrorFormat, reference)
	}

	placeholder := placeholderPattern.FindString(trimmedText)
	if placeholder == "" {
		placeholder = strings.TrimSpace(fallbackKey)
	}
	if placeholder == "" {
		return Template{}, fmt.Errorf(missingPlaceholderErrorFormat, reference)
	}
	return Template{Text: trimmedText, Placeholder: placeholder}, nil
}

// Load reads a template file and parses it.
func Load(fileSystem fsops.FS, path string, fallbackKey string) (Template, error) {
	content, readErr := fileSystem.ReadFile(path)
	if readErr != nil {
		return Template{}, fmt.Errorf(templateReadErrorFormat, path, readErr)
	}
	return Parse(path, string(content), fallbackKey)
}

// Render substitutes every placeholder occurrence with the given value.
func (template Template) Render(value string) string {
	return strings.ReplaceAll(template.Text, template.Placeholder, strings.TrimSpace(value))
}
