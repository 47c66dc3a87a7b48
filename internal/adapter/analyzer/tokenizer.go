// Package analyzer turns legal text into lexical tokens for diversity
// scoring and rough token budgeting.
package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer lowercases words and drops stopwords. Section and paragraph
// signs survive as their own tokens so "§ 1983" and "§ 1988" stay distinct
// from bare numbers in prose.
type Tokenizer struct {
	stopwords map[string]struct{}
}

func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: defaultStopwords()}
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if word != "§" && word != "¶" && len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// CountTokens estimates model tokens at roughly four characters each.
func (t *Tokenizer) CountTokens(text string) int {
	n := len([]rune(strings.TrimSpace(text)))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r == '§' || r == '¶':
			flush()
			words = append(words, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return words
}

func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "we", "our", "they", "their",
		"she", "her", "his", "if", "or", "so", "no", "can", "do",
		"does", "did", "been", "being", "would", "could", "should",
		"which", "who", "whom", "what", "when", "where", "such",
		"than", "also", "any", "said", "thereof", "herein", "hereby",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
