package model

import (
	"math/rand/v2"
	"time"
)

// Mood biases a cycle's nudge when no focus exists.
type Mood string

const (
	MoodResearch Mood = "research"
	MoodCreate   Mood = "create"
	MoodTidy     Mood = "tidy"
	MoodWonder   Mood = "wonder"
	MoodConnect  Mood = "connect"
	MoodRest     Mood = "rest"
)

// Moods is the fixed six-entry mood set.
var Moods = []Mood{MoodResearch, MoodCreate, MoodTidy, MoodWonder, MoodConnect, MoodRest}

// SampleMood picks one mood uniformly using r.
func SampleMood(r *rand.Rand) Mood {
	return Moods[r.IntN(len(Moods))]
}

// BrainState is the coarse lifecycle state reported to frontends.
type BrainState string

const (
	BrainStateIdle       BrainState = "idle"
	BrainStateThinking   BrainState = "thinking"
	BrainStateReflecting BrainState = "reflecting"
	BrainStatePlanning   BrainState = "planning"
	BrainStateStopped    BrainState = "stopped"
)

// InboxFile is a file the owner dropped into the box.
type InboxFile struct {
	Name    string
	Preview string
}

// ReflectionTracker accumulates importance until the reflection threshold is
// reached. Reset always returns the counter to exactly zero.
type ReflectionTracker struct {
	threshold    int
	cumulative   int
	contributors []MemoryID
}

func NewReflectionTracker(threshold int) *ReflectionTracker {
	return &ReflectionTracker{threshold: threshold}
}

// Add records one entry and reports whether the threshold has been reached.
func (x *ReflectionTracker) Add(id MemoryID, importance int) bool {
	x.cumulative += importance
	x.contributors = append(x.contributors, id)
	return x.Due()
}

// Due reports whether cumulative importance is at or above the threshold.
func (x *ReflectionTracker) Due() bool {
	return x.threshold > 0 && x.cumulative >= x.threshold
}

func (x *ReflectionTracker) Cumulative() int { return x.cumulative }

// Contributors returns a copy of the ids accumulated since the last reset.
func (x *ReflectionTracker) Contributors() []MemoryID {
	out := make([]MemoryID, len(x.contributors))
	copy(out, x.contributors)
	return out
}

func (x *ReflectionTracker) Reset() {
	x.cumulative = 0
	x.contributors = nil
}

// CycleState is the mutable state of one agent loop. It is owned by that
// loop alone and never shared.
type CycleState struct {
	Focus           string
	FocusMode       bool
	Cycle           int
	CyclesSincePlan int
	Tracker         *ReflectionTracker

	Inbox       []InboxFile
	UserMessage string

	ReplyDeadline *time.Time

	Mood             Mood
	ResearchStreak   int
	ProviderFailures int
	Position         Position

	// History is the bounded recent-activity window replayed into context.
	History []HistoryItem
}

// HistoryItem is one line of recent activity shown to the model.
type HistoryItem struct {
	Role string
	Text string
}

// PushHistory appends item and keeps only the newest window items.
func (x *CycleState) PushHistory(item HistoryItem, window int) {
	x.History = append(x.History, item)
	if window > 0 && len(x.History) > window {
		x.History = append([]HistoryItem(nil), x.History[len(x.History)-window:]...)
	}
}

// HasInbox reports whether an inbox alert is pending.
func (x *CycleState) HasInbox() bool { return len(x.Inbox) > 0 }
