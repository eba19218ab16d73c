package outcome

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"login failed", ErrLoginFailed, ExitLoginFailed},
		{"wrapped vendor down", fmt.Errorf("fetch statement: %w", ErrVendorDown), ExitVendorDown},
		{"user action", ErrUserActionNeeded, ExitUserActionNeeded},
		{"other", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestSignal(t *testing.T) {
	assert.Equal(t, "VENDOR_DOWN", Signal(fmt.Errorf("poll: %w", ErrVendorDown)))
	assert.Equal(t, "", Signal(errors.New("boom")))
}
