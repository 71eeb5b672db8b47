package actions

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrBlankType         = errors.New("action type must not be blank")
	ErrNonPositiveAmount = errors.New("action amount must be > 0")
	ErrMissingPlayer     = errors.New("action player id must be set")
	ErrBlankName         = errors.New("player name must not be blank")
)

// ActionEvent is a normalized gameplay event. The zero value is not valid;
// build one with NewActionEvent.
type ActionEvent struct {
	typ      string
	playerID uuid.UUID
	amount   int64
	key      string
	value    string
}

func NewActionEvent(typ string, playerID uuid.UUID, amount int64, key, value string) (ActionEvent, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return ActionEvent{}, ErrBlankType
	}
	if playerID == uuid.Nil {
		return ActionEvent{}, ErrMissingPlayer
	}
	if amount <= 0 {
		return ActionEvent{}, ErrNonPositiveAmount
	}
	return ActionEvent{
		typ:      typ,
		playerID: playerID,
		amount:   amount,
		key:      strings.TrimSpace(key),
		value:    strings.TrimSpace(value),
	}, nil
}

// MustActionEvent panics on invalid input. Meant for fixtures and tests.
func MustActionEvent(typ string, playerID uuid.UUID, amount int64, key, value string) ActionEvent {
	ev, err := NewActionEvent(typ, playerID, amount, key, value)
	if err != nil {
		panic(err)
	}
	return ev
}

func (e ActionEvent) Type() string        { return e.typ }
func (e ActionEvent) PlayerID() uuid.UUID { return e.playerID }
func (e ActionEvent) Amount() int64       { return e.amount }
func (e ActionEvent) Key() string         { return e.key }
func (e ActionEvent) Value() string       { return e.value }

// WithAmount returns a copy carrying amount. Non-positive amounts keep the
// original.
func (e ActionEvent) WithAmount(amount int64) ActionEvent {
	if amount > 0 {
		e.amount = amount
	}
	return e
}

// DeferredAction is an ActionEvent without attribution, queued by player name
// until the player is identified.
type DeferredAction struct {
	typ    string
	amount int64
	key    string
	value  string
}

func NewDeferredAction(typ string, amount int64, key, value string) (DeferredAction, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return DeferredAction{}, ErrBlankType
	}
	if amount <= 0 {
		return DeferredAction{}, ErrNonPositiveAmount
	}
	return DeferredAction{typ: typ, amount: amount, key: strings.TrimSpace(key), value: strings.TrimSpace(value)}, nil
}

func (a DeferredAction) Type() string  { return a.typ }
func (a DeferredAction) Amount() int64 { return a.amount }
func (a DeferredAction) Key() string   { return a.key }
func (a DeferredAction) Value() string { return a.value }

// Attribute resolves the action to a concrete player.
func (a DeferredAction) Attribute(playerID uuid.UUID) (ActionEvent, error) {
	return NewActionEvent(a.typ, playerID, a.amount, a.key, a.value)
}

// NormalizeName is the queue key for a player name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
