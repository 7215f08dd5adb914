package usecase

import "fmt"

func buildSummaryPrompt(content string, wordLimit int) string {
	return fmt.Sprintf(`The following is text from a document:
%s

Summarize the document in one paragraph, using no more than %d words.
Respond ONLY with the paragraph; do not include headings, labels, or extra text.
`, content, wordLimit)
}

func buildTagsPrompt(content string) string {
	return fmt.Sprintf(`%s

please provide comma separated 5 tags which describes above content.`, content)
}

func buildSensitivePrompt(content string) string {
	return fmt.Sprintf(`%s

Does the text contain sensitive information (PII, financial, health, or personal data)? Choose from the following:
true
false
`, content)
}

func buildConfidentialPrompt(content string) string {
	return fmt.Sprintf(`%s

Does the text contain confidential business information (contracts, invoices, corporate secrets, or internal documents)? Choose from the following:
true
false
`, content)
}

func buildDescriptionPrompt(content string, wordLimit int) string {
	return fmt.Sprintf("Write a concise description in one single line of maximum %d words. "+
		"Do not use words like 'image', 'picture', 'photo', 'depicts', or pronouns such as 'it', 'this', 'that'. "+
		"Only provide a neutral, direct description of the content:\n\n%s", wordLimit, content)
}
