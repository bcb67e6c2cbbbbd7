package proxygen

import (
	"strings"
	"unicode"
)

// DefaultFileName is the name of the generated file.
const DefaultFileName = "ducktape_adapters.go"

// AdapterName returns the adapter type name for an interface.
// e.g., "Greeter" → "greeterProxy", "HTTPClient" → "httpClientProxy"
func AdapterName(iface string) string {
	return lowerInitialism(iface) + "Proxy"
}

// lowerInitialism lowercases the leading run of upper case letters, keeping
// the last one upper case when it starts the next word.
func lowerInitialism(s string) string {
	runes := []rune(s)
	i := 0
	for i < len(runes) && unicode.IsUpper(runes[i]) {
		i++
	}
	switch {
	case i == 0:
		return s
	case i == 1 || i == len(runes):
		return strings.ToLower(string(runes[:i])) + string(runes[i:])
	}
	// "HTTPClient": lower "HTTP", keep "C".
	return strings.ToLower(string(runes[:i-1])) + string(runes[i-1:])
}
