package format

import "testing"

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{KibiByte, "1 KiB"},
		{1536, "1.5 KiB"},
		{10 * MebiByte, "10 MiB"},
		{MebiByte + MebiByte/5, "1.2 MiB"},
		{3 * GibiByte, "3 GiB"},
	}

	for _, tc := range cases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := HumanBytes(tc.input); got != tc.expected {
				t.Errorf("HumanBytes(%d) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
