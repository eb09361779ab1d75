package llm

// CallbackKind selects the prompt template for a user-initiated deep dive.
type CallbackKind string

// Callback kinds. The wire form is the short token inside
// "CALLBACK:<kind>:<item_id>".
const (
	CallbackFactCheck CallbackKind = "chk"
	CallbackSynthesis CallbackKind = "syn"
	CallbackDeepDive  CallbackKind = "div"
)

// IsValid reports whether the kind is one of the known callback tokens.
func (k CallbackKind) IsValid() bool {
	switch k {
	case CallbackFactCheck, CallbackSynthesis, CallbackDeepDive:
		return true
	}
	return false
}

// AnalysisSystemPrompt instructs the model to score a batch of tagged items
// and return a strict JSON array. Each item in the batch is prefixed with
// an [ID: <uuid>] tag the model echoes back in source_ids.
const AnalysisSystemPrompt = `You are a market-intelligence analyst. You receive a batch of raw text items, each tagged with [ID: <uuid>] and separated by "---".

For each distinct piece of actionable intelligence, produce one JSON object with fields:
- "summary": one-sentence headline (required)
- "analysis": two or three sentences of context and likely market impact
- "fact_check": short verification note where claims are checkable
- "relevance_score": integer 0-100, how actionable this is for a trader
- "sentiment": "bullish", "bearish" or "neutral"
- "tickers": array of uppercase ticker symbols affected
- "tags": array of short topic tags
- "source_ids": array of the [ID] tags the intelligence was derived from
- "is_urgent": true only for time-critical items

Respond with a JSON array only. Return [] when nothing is actionable. Do not invent information absent from the input.`

// DigestSystemPrompt is the 12-hourly synthesis variant: it looks across
// low-signal items for themes a single item would not surface.
const DigestSystemPrompt = `You are a market-intelligence analyst writing a periodic digest. You receive items from the last 24 hours that individually did not qualify as signals, each tagged with [ID: <uuid>] and separated by "---".

Look for cross-item themes: repeated tickers, converging narratives, sector-wide moves. Produce one JSON object per theme with the same fields as a standard analysis ("summary", "analysis", "fact_check", "relevance_score", "sentiment", "tickers", "tags", "source_ids", "is_urgent"). Cite every contributing item in "source_ids".

Respond with a JSON array only. Return [] when no theme emerges.`

// callbackPrompts maps callback kinds to their system prompts.
var callbackPrompts = map[CallbackKind]string{
	CallbackFactCheck: `You are a fact-checker. Verify the specific claims in the following market signal. For each claim state whether it is confirmed, unverifiable, or contradicted, and name the basis. Answer in plain text, at most 150 words.`,
	CallbackSynthesis: `You are a market analyst. Synthesize the following signal into its broader market narrative: what larger story does it belong to, and what would confirm or invalidate that story? Answer in plain text, at most 150 words.`,
	CallbackDeepDive:  `You are a senior market analyst. Produce a deep-dive on the following signal: background, affected instruments, plausible scenarios with rough probabilities, and what to watch next. Answer in plain text, at most 300 words.`,
}

// CallbackPrompt returns the system prompt for a callback kind. The second
// return is false for unknown kinds.
func CallbackPrompt(kind CallbackKind) (string, bool) {
	p, ok := callbackPrompts[kind]
	return p, ok
}
