package session

import (
	"strings"
	"time"
)

// Fragment is one buffered transcript chunk.
type Fragment struct {
	Text       string
	IsUser     bool
	ReceivedAt time.Time
}

// Buffer accumulates transcript fragments for one session between episode
// boundaries. It is not safe for concurrent use; the Manager serializes all
// access per session.
type Buffer struct {
	silenceWindow  time.Duration
	coalesceWindow time.Duration

	fragments        []Fragment
	episodeStartedAt time.Time
	lastFragmentAt   time.Time
	silenceDeadline  time.Time
}

func NewBuffer(silenceWindow, coalesceWindow time.Duration) *Buffer {
	return &Buffer{
		silenceWindow:  silenceWindow,
		coalesceWindow: coalesceWindow,
	}
}

// Append adds a fragment and returns the recomputed silence deadline
// (now + silence window). Empty or whitespace-only text is a no-op so noise
// cannot reset the silence clock; the second return reports whether state
// changed. A fragment from the same speaker arriving within the coalesce
// window of the previous one is merged into it instead of appended, matching
// how the device splits a single utterance across transport frames.
func (b *Buffer) Append(text string, isUser bool, now time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return b.silenceDeadline, false
	}

	if len(b.fragments) == 0 {
		b.episodeStartedAt = now
		b.fragments = append(b.fragments, Fragment{Text: trimmed, IsUser: isUser, ReceivedAt: now})
	} else if last := &b.fragments[len(b.fragments)-1]; last.IsUser == isUser && now.Sub(b.lastFragmentAt) < b.coalesceWindow {
		last.Text += " " + trimmed
	} else {
		b.fragments = append(b.fragments, Fragment{Text: trimmed, IsUser: isUser, ReceivedAt: now})
	}

	b.lastFragmentAt = now
	b.silenceDeadline = now.Add(b.silenceWindow)
	return b.silenceDeadline, true
}

// SnapshotText joins all buffered fragment text in arrival order with single
// spaces. Pure read.
func (b *Buffer) SnapshotText() string {
	if len(b.fragments) == 0 {
		return ""
	}
	parts := make([]string, len(b.fragments))
	for i, f := range b.fragments {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

// Fragments returns a copy of the buffered fragments.
func (b *Buffer) Fragments() []Fragment {
	out := make([]Fragment, len(b.fragments))
	copy(out, b.fragments)
	return out
}

// Clear empties the buffer and resets the episode markers. Idempotent.
func (b *Buffer) Clear() {
	b.fragments = nil
	b.episodeStartedAt = time.Time{}
	b.lastFragmentAt = time.Time{}
	b.silenceDeadline = time.Time{}
}

func (b *Buffer) IsEmpty() bool {
	return len(b.fragments) == 0
}

func (b *Buffer) Len() int {
	return len(b.fragments)
}

func (b *Buffer) EpisodeStartedAt() time.Time {
	return b.episodeStartedAt
}

func (b *Buffer) LastFragmentAt() time.Time {
	return b.lastFragmentAt
}
