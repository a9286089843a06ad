package search

import (
	"strconv"
	"strings"
)

const DefaultLimit = 20

// Query represents the structured parameters of a history search.
// It decouples the raw user input from what the index needs.
type Query struct {
	RawInput string // The original input from the user
	Terms    string // The actual text to match against message bodies
	Sender   string // Only messages from this identity, when set
	Limit    int    // Number of results
}

// ParseQuery parses a raw string to extract command-line style arguments.
// Example: /find "release date" --from alice --limit 5
func ParseQuery(input string, defaultLimit int) Query {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	query := Query{RawInput: input, Limit: defaultLimit}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --from alice or --limit 5
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "from":
				query.Sender = val
			case "limit":
				if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// If it's not a command, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, strings.Trim(part, `"`))
		}
	}

	query.Terms = strings.TrimSpace(strings.Join(textTerms, " "))
	return query
}
