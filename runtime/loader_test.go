package runtime

import (
	"chat-relay/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_Default_Dictionaries(t *testing.T) {
	req := require.New(t)

	data, err := NewDefaultCensoredLoader().LoadAll("censored")

	req.NoError(err)
	req.Equal([]string{"en", "fr"}, data.LanguageNames())
	req.Contains(data.Words, "crap")
	req.Contains(data.Words, "merde")
	req.IsIncreasing(data.Words)
}

func TestCensoredLoader_Merges_And_Normalizes(t *testing.T) {
	req := require.New(t)
	// Given two dictionaries sharing a word, with comments, CRLF endings and a stray file
	files := fstest.MapFS{
		"words/en.txt":    {Data: []byte("# english\r\nDamn\r\n\r\ncrap\r\n")},
		"words/fr.txt":    {Data: []byte("merde\ndamn\n")},
		"words/README.md": {Data: []byte("not a dictionary")},
	}

	// When they are loaded
	data, err := NewCensoredLoader(files).LoadAll("words")

	// Then words are lowercased, deduplicated and sorted
	req.NoError(err)
	req.Equal([]string{"crap", "damn", "merde"}, data.Words)
	req.Equal(map[string]int{"en": 2, "fr": 2}, data.Languages)
}

func TestCensoredLoader_Errors(t *testing.T) {
	req := require.New(t)

	_, err := NewDefaultCensoredLoader().LoadAll("missing")
	req.Error(err)

	empty := fstest.MapFS{"words/en.txt": {Data: []byte("# nothing yet\n")}}
	_, err = NewCensoredLoader(empty).LoadAll("words")
	req.ErrorIs(err, errors.ErrEmptyWords)
}
