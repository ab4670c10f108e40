// Package extraction turns free-text conversation transcripts into
// structured candidate actions. It supports two strategies: an LLM-backed
// extractor that calls a hosted chat-completion API with a fixed tool
// schema, and a deterministic rule-based extractor used as the guaranteed
// fallback. Strategies are composed with Chain, which tries each in order
// until one yields a usable result.
package extraction
