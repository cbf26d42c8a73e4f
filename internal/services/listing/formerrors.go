package listing

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// formErrorSelectors match the inline validation messages of the upload form
var formErrorSelectors = []string{
	`[data-testid$="--error"]`,
	`.web_ui__Validation__warning`,
	`.web_ui__Validation__error`,
	`[role="alert"]`,
}

// ExtractFormErrors collects distinct validation messages shown on the page
func ExtractFormErrors(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var messages []string
	for _, selector := range formErrorSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if text == "" || seen[text] {
				return
			}
			seen[text] = true
			messages = append(messages, text)
		})
	}
	return messages
}
