// Package engine implements the memory game state machine: a deck of
// paired cards, a score, and the select-card transition that compares
// two picks at a time.
//
// The engine is purely in-memory and not goroutine-safe. All mutation
// is expected to happen from a single owner (in this repo, a game
// session's run loop); the deferred flip-back after a mismatch is the
// caller's job to schedule, using the card IDs reported in Outcome and
// the guarded FlipBack method.
package engine

import (
	"crypto/rand"
	"math/big"
)

const (
	// MinPairs is the smallest board the engine will build.
	MinPairs = 2

	// DefaultPairs is used whenever a requested pair count is out of bounds.
	DefaultPairs = 8
)

// symbols is the pool of card faces. Each game draws its pair count
// from a shuffled copy, so small boards see different faces each time.
var symbols = []string{
	"🍎", "🍌", "🍒", "🍇", "🍋", "🍉", "🥝", "🍑",
	"🍍", "🥥", "🌽", "🥕", "🍄", "🫐", "🍐", "🍊",
	"🍓", "🥑", "🍆", "🥦", "🌶", "🧄", "🧅", "🥔",
}

// MaxPairs returns the largest valid pair count, bounded by the symbol pool.
func MaxPairs() int {
	return len(symbols)
}

// Card is a single card on the board. ID is unique and stable for the
// lifetime of a game, independent of deck position, so shuffling never
// creates ambiguity between the two cards sharing a Content.
type Card struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	FaceUp  bool   `json:"face_up"`
	Matched bool   `json:"matched"`
}

// Result classifies what a SelectCard call did.
type Result int

const (
	// Ignored means the selection was a no-op: unknown ID, already
	// matched, or already face-up. Nothing changed.
	Ignored Result = iota

	// FirstPick means the card became the pending half of a comparison.
	FirstPick

	// Match means the pick completed a comparison and both cards matched.
	Match

	// Mismatch means the pick completed a comparison and the cards
	// differed; Outcome.FlipBack names the pair to flip back down.
	Mismatch
)

// Outcome reports the effect of a SelectCard call.
type Outcome struct {
	Result Result

	// Won is true when a Match finished the board.
	Won bool

	// FlipBack holds the two card IDs to return face-down after the
	// presentation delay. Only meaningful when Result is Mismatch.
	FlipBack [2]int
}

// Game holds one board and its counters.
type Game struct {
	cards    []Card
	score    int
	moves    int
	gameOver bool
	pending  int // card ID of the first pick, -1 when none
}

// New builds a freshly shuffled game with the given pair count.
// Out-of-range counts fall back to DefaultPairs.
func New(pairs int) *Game {
	g := &Game{}
	g.Reset(pairs)
	return g
}

// Reset replaces the board and zeroes all counters. The new deck has
// an even length with every drawn symbol appearing exactly twice.
func (g *Game) Reset(pairs int) {
	if pairs < MinPairs || pairs > len(symbols) {
		pairs = DefaultPairs
	}

	pool := make([]string, len(symbols))
	copy(pool, symbols)
	shuffle(pool)

	cards := make([]Card, 0, pairs*2)
	for i := 0; i < pairs; i++ {
		cards = append(cards, Card{ID: i * 2, Content: pool[i]})
		cards = append(cards, Card{ID: i*2 + 1, Content: pool[i]})
	}
	shuffle(cards)

	g.cards = cards
	g.score = 0
	g.moves = 0
	g.gameOver = false
	g.pending = -1
}

// Shuffle reorders the deck with a uniform random permutation.
// Per-card state stays attached to each card; score, moves, and game
// status are untouched.
func (g *Game) Shuffle() {
	shuffle(g.cards)
}

// SelectCard is the central transition. Invalid picks (unknown ID,
// matched, or already face-up) are silent no-ops; the contract favors
// robustness against stray UI events over strict validation.
func (g *Game) SelectCard(id int) Outcome {
	idx := g.indexOf(id)
	if idx < 0 || g.cards[idx].Matched || g.cards[idx].FaceUp {
		return Outcome{Result: Ignored}
	}

	if g.pending < 0 {
		// Clear any stray face-up cards left by a mismatch whose
		// flip-back never ran, then start a new comparison.
		for i := range g.cards {
			if !g.cards[i].Matched {
				g.cards[i].FaceUp = false
			}
		}
		g.pending = id
		g.cards[idx].FaceUp = true
		return Outcome{Result: FirstPick}
	}

	g.moves++

	out := Outcome{}
	pidx := g.indexOf(g.pending)
	if pidx >= 0 && g.cards[pidx].Content == g.cards[idx].Content {
		g.cards[pidx].Matched = true
		g.cards[idx].Matched = true
		g.score += 2
		out.Result = Match
		out.Won = g.allMatched()
		g.gameOver = out.Won
	} else {
		if g.score > 0 {
			g.score--
		}
		out.Result = Mismatch
		out.FlipBack = [2]int{g.pending, id}
	}

	g.pending = -1
	g.cards[idx].FaceUp = true

	return out
}

// FlipBack returns the two cards of a resolved mismatch face-down.
// A card is skipped if it no longer exists, has since been matched, or
// is the current pending pick of a newer comparison.
func (g *Game) FlipBack(a, b int) {
	for _, id := range [2]int{a, b} {
		idx := g.indexOf(id)
		if idx < 0 || g.cards[idx].Matched || id == g.pending {
			continue
		}
		g.cards[idx].FaceUp = false
	}
}

// Cards returns a copy of the deck in its current order.
func (g *Game) Cards() []Card {
	return append([]Card(nil), g.cards...)
}

// Score is the current score, never negative.
func (g *Game) Score() int {
	return g.score
}

// Moves is the number of completed two-card comparisons.
func (g *Game) Moves() int {
	return g.moves
}

// GameOver reports whether every card has been matched.
func (g *Game) GameOver() bool {
	return g.gameOver
}

// Pending returns the card ID of an in-progress comparison's first
// pick, or -1 when no comparison is underway.
func (g *Game) Pending() int {
	return g.pending
}

func (g *Game) indexOf(id int) int {
	for i := range g.cards {
		if g.cards[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Game) allMatched() bool {
	for i := range g.cards {
		if !g.cards[i].Matched {
			return false
		}
	}
	return true
}

// shuffle is an unbiased Fisher-Yates permutation backed by
// crypto/rand. A failed read skips the swap rather than aborting.
func shuffle[T any](s []T) {
	for i := len(s) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			continue
		}
		j := int(n.Int64())
		s[i], s[j] = s[j], s[i]
	}
}
