package providers

import (
	"context"
	"math"
	"testing"
)

func TestLocalProviderChatEchoes(t *testing.T) {
	provider := NewLocalProvider()
	got, err := provider.Chat(context.Background(), []Message{
		{Role: "system", Content: "instructions"},
		{Role: "user", Content: "  what is indexed?  "},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "[local-stub] what is indexed?" {
		t.Fatalf("chat reply = %q", got)
	}
	if _, err := provider.Chat(context.Background(), nil); err == nil {
		t.Fatal("expected an error for empty messages")
	}
}

func TestLocalProviderEmbedDeterministic(t *testing.T) {
	provider := NewLocalProvider()
	first, err := provider.Embed(context.Background(), []string{"diabetes trial recruiting"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	second, err := provider.Embed(context.Background(), []string{"diabetes trial recruiting"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(first) != 1 || len(first[0]) != localEmbedDim {
		t.Fatalf("unexpected vector shape: %d x %d", len(first), len(first[0]))
	}
	for i := range first[0] {
		if first[0][i] != second[0][i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
}

func TestLocalProviderEmbedNormalized(t *testing.T) {
	provider := NewLocalProvider()
	vectors, err := provider.Embed(context.Background(), []string{"alpha beta gamma"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	var norm float64
	for _, v := range vectors[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("vector not unit length: %f", norm)
	}
}
