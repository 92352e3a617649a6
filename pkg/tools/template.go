package tools

import "strings"

// Placeholders recognized in argument templates.
const (
	PlaceholderImagePath    = "{image_path}"
	PlaceholderContext      = "{context}"
	PlaceholderSystemPrompt = "{system_prompt}"
)

// Values fills an argument template.
type Values struct {
	ImagePath    string
	Context      string
	SystemPrompt string
}

// Substitute replaces the three placeholders in every argument by literal
// substring replacement. Replacement is single-pass, so placeholder text that
// appears inside a substituted value is not expanded again. Unknown
// placeholders are left as they are.
func Substitute(args []string, v Values) []string {
	r := strings.NewReplacer(
		PlaceholderImagePath, v.ImagePath,
		PlaceholderContext, v.Context,
		PlaceholderSystemPrompt, v.SystemPrompt,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
