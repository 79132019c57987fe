package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0B"},
		{512, "512B"},
		{1024, "1.0Ki"},
		{1536, "1.5Ki"},
		{8 << 20, "8.0Mi"},
		{16 << 30, "16.0Gi"},
		{2 << 40, "2.0Ti"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in), "Format(%d)", tt.in)
	}
}
