package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHumanReadableSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1500, "1.5 kB"},
		{1500000, "1.5 MB"},
		{2000000000, "2.0 GB"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, humanReadableSize(tc.bytes))
	}
}
