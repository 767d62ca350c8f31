package core

import (
	"strings"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "same content produces same checksum",
			content: "test content",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "long content",
			content: strings.Repeat("This is a much longer piece of content. ", 200),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum1 := Checksum(tt.content)
			sum2 := Checksum(tt.content)
			if sum1 != sum2 {
				t.Errorf("Checksum() produced different digests for same content: %s vs %s", sum1, sum2)
			}
			if len(sum1) != 64 {
				t.Errorf("Checksum() length = %d, want 64 hex characters", len(sum1))
			}
		})
	}
}

func TestChecksum_SingleCharacterDifference(t *testing.T) {
	sum1 := Checksum("The quick brown fox.")
	sum2 := Checksum("The quick brown fox!")
	if sum1 == sum2 {
		t.Errorf("Checksum() produced same digest for different content")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one character", "a", 1},
		{"exact multiple", "abcd", 1},
		{"rounds up", "abcde", 2},
		{"single sentence of 44 characters", "This is a test sentence with multiple words.", 11},
		{"multibyte counted as characters", "日本語テキスト", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from ProcessingStatus
		to   ProcessingStatus
		want bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessed, StatusProcessing, true},
		{StatusFailed, StatusProcessing, true},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusPending, StatusProcessed, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessed, StatusFailed, false},
		{StatusFailed, StatusProcessed, false},
		{StatusProcessed, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
