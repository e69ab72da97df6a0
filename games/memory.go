// Package games holds design notes for the games served by matchbox.
package games

// Classic concentration: an even deck where every card face appears exactly twice
// Cards start face-down; the player reveals two at a time
// A matching pair stays face-up permanently and scores +2
// A mismatched pair costs 1 point (score never drops below zero) and flips back after a short delay
// The board is cleared when every card has been matched

// Implementation details:
// - Pure state machine in the engine package; one Hub run loop per game ID mutates it
// - Flip-back delay is a cancellable timer feeding back into the run loop
// - Card identity is a stable ID, independent of board position, so shuffling is safe
// - Face-down card symbols never leave the server

// Possible future variants:
// - Timed mode (clear the board before the clock runs out)
// - Larger symbol pools (flags, letters) selectable per game
