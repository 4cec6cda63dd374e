package intent

import (
	"strings"

	"github.com/helmsman-ai/helmsman/internal/engine"
	"github.com/helmsman-ai/helmsman/internal/routing"
)

const systemPrompt = `You are an intent classification engine. Analyze the user's prompt. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Intent types:
- "general_chat": open-ended conversation with no specific goal
- "quick_answer": a short factual question with a short answer
- "complex_reasoning": analysis, planning, or multi-step reasoning
- "code_generation": writing, fixing, or explaining code
- "vision_analysis": understanding the contents of an image

Rules:
- Pick exactly one intent type.
- When several could apply, prefer the most specific one.`

// BuildPrompt constructs the chat messages for intent classification.
func BuildPrompt(text string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}
}

// KeywordIntent is the static fallback classifier used when the LLM path
// fails. It scans for indicative keywords and defaults to general chat.
func KeywordIntent(text string) routing.Intent {
	lower := strings.ToLower(text)

	for _, kw := range []string{"code", "function", "bug", "compile", "implement", "refactor"} {
		if strings.Contains(lower, kw) {
			return routing.IntentCodeGeneration
		}
	}
	for _, kw := range []string{"image", "picture", "photo", "screenshot", "diagram"} {
		if strings.Contains(lower, kw) {
			return routing.IntentVisionAnalysis
		}
	}
	for _, kw := range []string{"analyze", "analyse", "explain why", "compare", "plan", "design", "prove"} {
		if strings.Contains(lower, kw) {
			return routing.IntentComplexReasoning
		}
	}
	if strings.HasPrefix(lower, "what is") || strings.HasPrefix(lower, "who is") ||
		strings.HasPrefix(lower, "when ") || strings.HasPrefix(lower, "where ") {
		return routing.IntentQuickAnswer
	}
	return routing.IntentGeneralChat
}
