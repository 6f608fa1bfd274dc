package errors

import "sort"

// Template defines a registered error code.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

var registry = map[string]Template{
	// Configuration (VC100-VC199)
	"VC100": {
		Category: CategoryConfig,
		Message:  "Configuration not found",
		Detail:   "No viewcore.json, viewcore.yaml or viewcore.yml was found.",
	},
	"VC101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The configuration file could not be parsed or holds an invalid value.",
	},
	"VC102": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations are written like \"30s\" or \"1m30s\".",
	},

	// Serving (VC200-VC299)
	"VC200": {
		Category: CategoryServe,
		Message:  "Listen failed",
		Detail:   "The server could not bind its address.",
	},
	"VC201": {
		Category: CategoryServe,
		Message:  "Server stopped unexpectedly",
	},

	// Journal (VC300-VC399)
	"VC300": {
		Category: CategoryJournal,
		Message:  "Journal unavailable",
		Detail:   "The journal sink could not be opened.",
	},
	"VC301": {
		Category: CategoryJournal,
		Message:  "Replay failed",
		Detail:   "A journal segment could not be read or a message could not be delivered.",
	},

	// Command line (VC400-VC499)
	"VC400": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
}

// Codes returns all registered codes in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
