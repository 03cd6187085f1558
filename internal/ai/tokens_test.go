package ai

import (
	"strings"
	"testing"
)

func TestCountTokensEmpty(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Fatalf("empty text should count 0 tokens, got %d", got)
	}
}

func TestCountTokensNonEmpty(t *testing.T) {
	if got := CountTokens("The liability cap applies to direct damages only."); got == 0 {
		t.Fatal("non-trivial text should count at least one token")
	}
}

func TestCountTokensGrowsWithText(t *testing.T) {
	short := CountTokens(strings.Repeat("clause ", 10))
	long := CountTokens(strings.Repeat("clause ", 100))
	if long <= short {
		t.Fatalf("longer text should count more tokens: short=%d long=%d", short, long)
	}
}
