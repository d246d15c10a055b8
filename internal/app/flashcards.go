package app

import (
	"sync"

	"studybuddy-client/internal/domain"
)

// DeckView is what the flashcard viewer renders.
type DeckView struct {
	Empty   bool              `json:"empty"`
	Index   int               `json:"index"`
	Total   int               `json:"total"`
	Card    *domain.FlashCard `json:"card,omitempty"`
	Flipped bool              `json:"flipped"`
}

// FlashcardDeck pages through a read-only card collection. Moving to another
// card always shows its question side first.
type FlashcardDeck struct {
	mu      sync.Mutex
	cards   []domain.FlashCard
	index   int
	flipped bool
}

func NewFlashcardDeck(cards []domain.FlashCard) *FlashcardDeck {
	return &FlashcardDeck{cards: append([]domain.FlashCard(nil), cards...)}
}

func (d *FlashcardDeck) Flip() DeckView {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.cards) > 0 {
		d.flipped = !d.flipped
	}
	return d.viewLocked()
}

func (d *FlashcardDeck) Next() DeckView { return d.move(1) }

func (d *FlashcardDeck) Previous() DeckView { return d.move(-1) }

func (d *FlashcardDeck) View() DeckView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

func (d *FlashcardDeck) move(delta int) DeckView {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.index + delta
	if next >= 0 && next < len(d.cards) {
		d.index = next
		d.flipped = false
	}
	return d.viewLocked()
}

func (d *FlashcardDeck) viewLocked() DeckView {
	v := DeckView{Empty: len(d.cards) == 0, Index: d.index, Total: len(d.cards), Flipped: d.flipped}
	if !v.Empty {
		card := d.cards[d.index]
		v.Card = &card
	}
	return v
}
