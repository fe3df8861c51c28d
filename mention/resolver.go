// Package mention turns chat content into @mention tokens and resolves them
// against a roster by display name.
package mention

import (
	"board-lab/contract"
	"board-lab/domain"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NameResolver matches tokens against display names, case-insensitively.
// Several participants sharing a name are all returned.
type NameResolver struct{}

func NewNameResolver() NameResolver {
	return NameResolver{}
}

var _ contract.MentionResolver = NameResolver{}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// Parse scans content once, left to right. A token is an '@' at the start of
// the text or after a rune that is not part of a word, followed by the
// longest run of letters, digits, '_', '-' and '.', trailing dots excluded.
func (NameResolver) Parse(content string) []domain.MentionToken {
	var tokens []domain.MentionToken
	prev := rune(-1)
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])
		if r != '@' || (prev != -1 && isWordRune(prev)) {
			prev = r
			i += size
			continue
		}
		start := i + size
		end := start
		for end < len(content) {
			next, n := utf8.DecodeRuneInString(content[end:])
			if !isWordRune(next) {
				break
			}
			end += n
		}
		word := strings.TrimRight(content[start:end], ".")
		if word != "" {
			tokens = append(tokens, token(word))
		}
		prev = '@'
		if end > start {
			prev, _ = utf8.DecodeLastRuneInString(content[start:end])
		}
		i = end
	}
	return tokens
}

func token(word string) domain.MentionToken {
	switch {
	case strings.EqualFold(word, string(domain.MentionEveryone)):
		return domain.MentionToken{Kind: domain.MentionEveryone, Text: word}
	case strings.EqualFold(word, string(domain.MentionHere)):
		return domain.MentionToken{Kind: domain.MentionHere, Text: word}
	default:
		return domain.MentionToken{Kind: domain.MentionUser, Text: word}
	}
}

// Resolve returns the uids targeted by token, in roster order.
// An unknown name resolves to nothing.
func (NameResolver) Resolve(token domain.MentionToken, roster []domain.RosterEntry) []string {
	var uids []string
	for _, e := range roster {
		switch token.Kind {
		case domain.MentionEveryone:
			uids = append(uids, e.ID)
		case domain.MentionHere:
			if e.Status == domain.StatusOnline {
				uids = append(uids, e.ID)
			}
		default:
			if strings.EqualFold(e.DisplayName, token.Text) {
				uids = append(uids, e.ID)
			}
		}
	}
	return uids
}

// Recipients resolves every token and concatenates the results without
// removing duplicates: a participant targeted twice is notified twice.
func Recipients(r contract.MentionResolver, tokens []domain.MentionToken, roster []domain.RosterEntry) []string {
	var uids []string
	for _, t := range tokens {
		uids = append(uids, r.Resolve(t, roster)...)
	}
	return uids
}
