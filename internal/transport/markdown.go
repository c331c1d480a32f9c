package transport

import "strings"

var markdownV2Escaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeMarkdownV2 escapes the characters the MarkdownV2 dialect treats
// as markup, so filenames cannot corrupt message rendering.
func EscapeMarkdownV2(text string) string {
	return markdownV2Escaper.Replace(text)
}
