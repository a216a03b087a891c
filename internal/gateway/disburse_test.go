package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIrisStatusResult(t *testing.T) {
	tests := []struct {
		status    string
		completed bool
		failed    bool
	}{
		{"completed", true, false},
		{"failed", false, true},
		{"rejected", false, true},
		// still in flight on the rail, neither flag set
		{"queued", false, false},
		{"approved", false, false},
		{"processed", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			r := irisStatusResult(tt.status)
			assert.Equal(t, tt.completed, r.Completed)
			assert.Equal(t, tt.failed, r.Failed)
			if !tt.completed {
				assert.Contains(t, r.Message, tt.status)
			}
		})
	}
}
