// Package prompts provides the embedded prompt banks and the sampling
// policies that draw a per-session prompt sequence from them.
//
// The banks are plain text files compiled into the binary, one prompt per
// line. Lines starting with '#' and blank lines are skipped. The banks are
// immutable and shared read-only across all sessions.
package prompts

import (
	"bufio"
	"embed"
	"fmt"
	"math/rand"
	"strings"
)

//go:embed bank/*.txt
var bankFS embed.FS

// Category identifies which bank a prompt was drawn from.
type Category string

const (
	CategoryCodeSwitched Category = "codeswitched"
	CategoryPlain        Category = "plain"
	CategoryLocal        Category = "local"
)

// bankFiles maps each category to its embedded source file.
var bankFiles = map[Category]string{
	CategoryCodeSwitched: "bank/codeswitched.txt",
	CategoryPlain:        "bank/plain.txt",
	CategoryLocal:        "bank/local.txt",
}

// Prompt is a single text the user is asked to speak.
type Prompt struct {
	Text     string
	Category Category
}

// Bank holds all loaded prompts, partitioned by category.
type Bank struct {
	byCategory map[Category][]Prompt
}

// Load parses all embedded bank files into a Bank.
func Load() (*Bank, error) {
	b := &Bank{byCategory: make(map[Category][]Prompt)}

	for cat, file := range bankFiles {
		f, err := bankFS.Open(file)
		if err != nil {
			return nil, fmt.Errorf("opening bank file %s: %w", file, err)
		}

		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			b.byCategory[cat] = append(b.byCategory[cat], Prompt{Text: line, Category: cat})
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading bank file %s: %w", file, err)
		}

		if len(b.byCategory[cat]) == 0 {
			return nil, fmt.Errorf("bank file %s contains no prompts", file)
		}
	}

	return b, nil
}

// Size returns the number of prompts in the given category.
func (b *Bank) Size(cat Category) int {
	return len(b.byCategory[cat])
}

// Sample draws n prompts from one category without replacement. If the pool
// holds fewer than n prompts, the whole pool is returned (shuffled).
func (b *Bank) Sample(cat Category, n int) []Prompt {
	pool := b.byCategory[cat]
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return nil
	}

	perm := rand.Perm(len(pool))
	out := make([]Prompt, n)
	for i := 0; i < n; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

// SampleMixed draws the requested number of prompts from each category
// independently, then shuffles the combined sequence so categories are
// interleaved randomly.
func (b *Bank) SampleMixed(counts map[Category]int) []Prompt {
	var out []Prompt
	for _, cat := range []Category{CategoryPlain, CategoryCodeSwitched, CategoryLocal} {
		out = append(out, b.Sample(cat, counts[cat])...)
	}
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Replacement returns a prompt from the same category as old whose text is
// not in exclude. When the pool has nothing left to offer, old itself is
// returned so the caller can keep the current prompt.
func (b *Bank) Replacement(old Prompt, exclude []Prompt) Prompt {
	used := make(map[string]bool, len(exclude)+1)
	used[old.Text] = true
	for _, p := range exclude {
		used[p.Text] = true
	}

	var candidates []Prompt
	for _, p := range b.byCategory[old.Category] {
		if !used[p.Text] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return old
	}
	return candidates[rand.Intn(len(candidates))]
}

// SamplePolicy produces a fresh prompt sequence for one session.
type SamplePolicy func(b *Bank) []Prompt

// SinglePool returns the standard-variant policy: n prompts drawn uniformly
// from the code-switched bank.
func SinglePool(n int) SamplePolicy {
	return func(b *Bank) []Prompt {
		return b.Sample(CategoryCodeSwitched, n)
	}
}

// MixedPools returns the clinical-variant policy: fixed sub-counts drawn
// from each category and shuffled together.
func MixedPools(plain, codeSwitched, local int) SamplePolicy {
	return func(b *Bank) []Prompt {
		return b.SampleMixed(map[Category]int{
			CategoryPlain:        plain,
			CategoryCodeSwitched: codeSwitched,
			CategoryLocal:        local,
		})
	}
}
