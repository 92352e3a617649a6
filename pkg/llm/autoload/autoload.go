// Package autoload registers every built-in provider. Import it for side
// effects.
package autoload

import (
	_ "toolbridge/pkg/llm/azure"
	_ "toolbridge/pkg/llm/gemini"
	_ "toolbridge/pkg/llm/ollama"
	_ "toolbridge/pkg/llm/openailm"
)
