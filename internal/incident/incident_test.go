package incident

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactContext(t *testing.T) {
	in := map[string]any{
		"day":         "20260115",
		"rpc_url":     "https://polygon-rpc.example",
		"private_key": "0xdeadbeef",
		"api_token":   "abc123",
		"nested": map[string]any{
			"Authorization": "Bearer xyz",
			"findings":      []string{"Revenue mismatch"},
		},
	}

	out := redactContext(in)

	assert.Equal(t, "20260115", out["day"])
	assert.Equal(t, "https://polygon-rpc.example", out["rpc_url"])
	assert.Equal(t, "***REDACTED***", out["private_key"])
	assert.Equal(t, "***REDACTED***", out["api_token"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "***REDACTED***", nested["Authorization"])
	assert.Equal(t, []string{"Revenue mismatch"}, nested["findings"])

	// Input must stay untouched.
	assert.Equal(t, "0xdeadbeef", in["private_key"])
}

func TestRedactContextNil(t *testing.T) {
	assert.Nil(t, redactContext(nil))
}
