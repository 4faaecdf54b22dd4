// Package vocab loads the curated keyword vocabulary and spots keywords in
// free text.
//
// Matching is deliberately substring-based rather than tokenized: a keyword
// matches wherever it appears inside the lowercased text, including inside a
// longer word. That trades precision for recall on entity spotting and is a
// product decision, not an oversight to fix here.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bobmcallan/marketsift/internal/models"
)

// ErrVocabularyLoad wraps any failure to read a vocabulary source. An empty
// but readable source is valid and yields an empty keyword class.
var ErrVocabularyLoad = errors.New("vocabulary load failed")

// Vocabulary is the immutable set of normalized keywords, split into the two
// weight classes. Iteration order is load order and stays fixed for the life
// of the process.
type Vocabulary struct {
	entities []string
	generic  []string
	class    map[string]keywordClass
}

type keywordClass int

const (
	classEntity keywordClass = iota
	classGeneric
)

// Load reads the two newline-delimited keyword files. Either path may point
// at an empty file; a missing or unreadable file is an error.
func Load(entityPath, genericPath string) (*Vocabulary, error) {
	entityFile, err := os.Open(entityPath)
	if err != nil {
		return nil, fmt.Errorf("%w: entity source %s: %w", ErrVocabularyLoad, entityPath, err)
	}
	defer entityFile.Close()

	genericFile, err := os.Open(genericPath)
	if err != nil {
		return nil, fmt.Errorf("%w: generic source %s: %w", ErrVocabularyLoad, genericPath, err)
	}
	defer genericFile.Close()

	return LoadFromReaders(entityFile, genericFile)
}

// LoadFromReaders builds a Vocabulary from two line-oriented sources.
// Phrases are trimmed and lowercased; blanks and '#' comment lines are
// dropped. Duplicates within a class collapse to the first occurrence.
// A phrase present in both classes is classified as an entity: the entity
// list wins, and the generic occurrence is discarded.
func LoadFromReaders(entitySource, genericSource io.Reader) (*Vocabulary, error) {
	v := &Vocabulary{class: make(map[string]keywordClass)}

	entities, err := readKeywords(entitySource)
	if err != nil {
		return nil, fmt.Errorf("%w: entity source: %w", ErrVocabularyLoad, err)
	}
	for _, kw := range entities {
		if _, seen := v.class[kw]; seen {
			continue
		}
		v.class[kw] = classEntity
		v.entities = append(v.entities, kw)
	}

	generic, err := readKeywords(genericSource)
	if err != nil {
		return nil, fmt.Errorf("%w: generic source: %w", ErrVocabularyLoad, err)
	}
	for _, kw := range generic {
		if _, seen := v.class[kw]; seen {
			continue // entity classification wins on overlap
		}
		v.class[kw] = classGeneric
		v.generic = append(v.generic, kw)
	}

	return v, nil
}

// readKeywords normalizes one source: trim, lowercase, drop empties and comments.
func readKeywords(r io.Reader) ([]string, error) {
	var keywords []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keywords, nil
}

// Entities returns the entity keywords in iteration order.
// The returned slice is shared; callers must not modify it.
func (v *Vocabulary) Entities() []string {
	return v.entities
}

// Generic returns the generic keywords in iteration order.
func (v *Vocabulary) Generic() []string {
	return v.generic
}

// Len returns the total keyword count across both classes.
func (v *Vocabulary) Len() int {
	return len(v.entities) + len(v.generic)
}

// Analyze reports which keywords of each class the text contains, as a
// case-insensitive substring scan. Pure function: no I/O, safe for any
// number of concurrent callers. Empty text yields an empty result.
func (v *Vocabulary) Analyze(text string) models.MatchResult {
	var result models.MatchResult
	if text == "" {
		return result
	}

	lowered := strings.ToLower(text)
	for _, kw := range v.entities {
		if strings.Contains(lowered, kw) {
			result.Entities = append(result.Entities, kw)
		}
	}
	for _, kw := range v.generic {
		if strings.Contains(lowered, kw) {
			result.Generic = append(result.Generic, kw)
		}
	}
	return result
}

// Tag reports the subset of vocabulary keywords contained in an
// already-lowercased text blob, split by class. Used by ingestion, which
// lowercases each market blob once up front.
func (v *Vocabulary) Tag(blob string) (entities, generic []string) {
	if blob == "" {
		return nil, nil
	}
	for _, kw := range v.entities {
		if strings.Contains(blob, kw) {
			entities = append(entities, kw)
		}
	}
	for _, kw := range v.generic {
		if strings.Contains(blob, kw) {
			generic = append(generic, kw)
		}
	}
	return entities, generic
}
