// Package autoload registers every built-in channel. Import it for side
// effects.
package autoload

import (
	_ "toolbridge/pkg/channels/web"
)
