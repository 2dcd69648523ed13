package responder

import "testing"

func TestNewOpenAI_DefaultModel(t *testing.T) {
	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", Logger: discard()})
	if o.model != "gpt-4o-mini" {
		t.Errorf("default model = %q, want gpt-4o-mini", o.model)
	}

	o = NewOpenAI(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o", Logger: discard()})
	if o.model != "gpt-4o" {
		t.Errorf("configured model = %q, want gpt-4o", o.model)
	}
}

func TestOpenAI_Healthy(t *testing.T) {
	if err := NewOpenAI(OpenAIConfig{Logger: discard()}).Healthy(t.Context()); err == nil {
		t.Error("missing API key must fail the health check")
	}
	if err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", Logger: discard()}).Healthy(t.Context()); err != nil {
		t.Errorf("healthy with key: %v", err)
	}
}
