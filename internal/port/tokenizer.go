package port

// Tokenizer produces lexical tokens for diversity scoring.
type Tokenizer interface {
	Tokenize(text string) []string

	// CountTokens estimates how many model tokens text occupies.
	CountTokens(text string) int
}
