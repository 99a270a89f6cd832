package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStars(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{10, 10, 5},
		{8, 10, 3},
		{6, 10, 1},
		{5, 10, 0},
		{0, 0, 0},
		{0, 10, 0},
		{1, 1, 5},
		{9, 10, 3},
		{7, 10, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Stars(tt.correct, tt.total),
			"Stars(%d, %d)", tt.correct, tt.total)
	}
}
