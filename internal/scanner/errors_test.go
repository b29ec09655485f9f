package scanner

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"io", IOError("r", io.ErrUnexpectedEOF), IOFailure},
		{"other", OtherError("r", errors.New("bad")), OtherFailure},
		{"wrapped io", fmt.Errorf("context: %w", IOError("r", io.EOF)), IOFailure},
		{"plain", errors.New("plain"), OtherFailure},
		{"zero kind", &ScanError{Region: "r", Err: io.EOF}, OtherFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestScanErrorUnwrap(t *testing.T) {
	err := IOError(".META.,,1", io.ErrClosedPipe)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Contains(t, err.Error(), ".META.,,1")
	assert.Contains(t, err.Error(), "io failure")
	assert.Equal(t, "other", OtherFailure.String())
}
