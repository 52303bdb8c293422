package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                            `{"a":1}`,
		"```json\n{\"a\":1}\n```":              `{"a":1}`,
		"```\n{\"a\":1}\n```":                  `{"a":1}`,
		"Sure! Here it is: {\"a\":{\"b\":2}} ": `{"a":{"b":2}}`,
		"no json here":                         "no json here",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractJSON(in), in)
	}
}
