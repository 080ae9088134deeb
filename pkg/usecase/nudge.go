package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/inbox"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
)

// NudgeKind names which priority tier produced a cycle's nudge.
type NudgeKind string

const (
	NudgeInbox NudgeKind = "inbox"
	NudgeVoice NudgeKind = "voice"
	NudgeWake  NudgeKind = "wake"
	NudgeFocus NudgeKind = "focus"
	NudgeMood  NudgeKind = "mood"
)

// FocusModeText replaces the continue nudge while focus mode is on.
const FocusModeText = "Focus mode is on. Stay with your current project and push it forward. Don't start anything new, don't wander. Make concrete progress and save it to files."

const (
	wakeProjectsLimit = 1500
	wakeFileLimit     = 30
	wakeMemoryCount   = 5
	wakeQuery         = "what was I working on and thinking about"

	relatedMinAge = 30 * time.Second

	researchWarnStreak = 3
	researchStopStreak = 5
)

var moodNudges = map[model.Mood]string{
	model.MoodResearch: "You feel curious. Pick something from your interests you don't understand well yet and look it up.",
	model.MoodCreate:   "You feel like making something. Write, sketch, or build a small thing and save it to a file.",
	model.MoodTidy:     "You feel like tidying up. Look through your files, organise them, and update what's out of date.",
	model.MoodWonder:   "Your mind drifts. Wander through an idea with no goal and see where it leads.",
	model.MoodConnect:  "You feel like connecting things. Look for a link between two of your interests or two of your files.",
	model.MoodRest:     "You feel calm and slow. Walk around your room, look out the window, and think quietly.",
}

// Nudge is the single context fragment chosen for a cycle.
type Nudge struct {
	Kind NudgeKind
	Text string
}

// FocusDriven reports whether the focus, rather than a mood, steered the cycle.
func (n Nudge) FocusDriven() bool {
	return n.Kind == NudgeFocus || n.Kind == NudgeWake
}

// VoiceNudge wraps a message heard from outside the room.
func VoiceNudge(msg string) string {
	return fmt.Sprintf("You hear a voice from outside your room say: %q\n\nYou can respond with the respond tool, or just keep doing what you're doing.", msg)
}

// ResearchNudge nags an agent that keeps searching without writing.
func ResearchNudge(streak int) string {
	switch {
	case streak >= researchStopStreak:
		return "IMPORTANT: You've been researching for many cycles without writing any files. STOP researching. Write up what you've found NOW: save a report, summary, or analysis to a file using a shell command."
	case streak >= researchWarnStreak:
		return "You've gathered good research material. Time to write up your findings. Save a report or summary to a file (e.g. research/topic_name.md)."
	}
	return ""
}

// MoodNudge biases a cycle that has no focus.
func MoodNudge(mood model.Mood, researchStreak int) string {
	text, ok := moodNudges[mood]
	if !ok {
		text = moodNudges[model.MoodWonder]
	}
	if r := ResearchNudge(researchStreak); r != "" {
		text += "\n" + r
	}
	return text
}

// InboxNudge announces files the owner dropped into the box.
func InboxNudge(files []model.InboxFile) (string, error) {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return render(inboxPrompt, struct {
		Names []string
		Files []model.InboxFile
	}{names, files})
}

// selectNudge applies the priority inbox > voice > focus/wake > mood.
func (b *Brain) selectNudge(ctx context.Context) Nudge {
	st := &b.state
	logger := logging.From(ctx)

	if st.HasInbox() {
		text, err := InboxNudge(st.Inbox)
		if err == nil {
			return Nudge{Kind: NudgeInbox, Text: text}
		}
		logger.Warn("failed to render inbox nudge", "error", err)
	}

	if st.UserMessage != "" {
		return Nudge{Kind: NudgeVoice, Text: VoiceNudge(st.UserMessage)}
	}

	if st.FocusMode {
		return Nudge{Kind: NudgeFocus, Text: "Continue.\n" + FocusModeText}
	}

	if len(st.History) == 0 && st.Cycle == 1 {
		if entries, err := b.store.Recent(ctx, 1); err == nil && len(entries) > 0 {
			text, err := b.wakeNudge(ctx)
			if err == nil {
				return Nudge{Kind: NudgeWake, Text: text}
			}
			logger.Warn("failed to render wake nudge", "error", err)
		}
	}

	if st.Focus != "" {
		return Nudge{Kind: NudgeFocus, Text: b.continueNudge(ctx)}
	}

	return Nudge{Kind: NudgeMood, Text: MoodNudge(st.Mood, st.ResearchStreak)}
}

func (b *Brain) wakeNudge(ctx context.Context) (string, error) {
	projects, _ := readProjects(b.cfg.BoxDir)

	files, err := inbox.NewScanner(b.cfg.BoxDir).List()
	if err != nil {
		logging.From(ctx).Warn("failed to list box", "error", err)
	}

	var memories []string
	if scores, err := b.retriever.Retrieve(ctx, wakeQuery, wakeMemoryCount); err == nil {
		for _, s := range scores {
			memories = append(memories, s.Entry.Content)
		}
	}

	return render(wakePrompt, struct {
		Projects string
		Files    []string
		Memories []string
	}{
		Projects: strutil.Truncate(strings.TrimSpace(projects), wakeProjectsLimit),
		Files:    files[:min(len(files), wakeFileLimit)],
		Memories: memories,
	})
}

func (b *Brain) continueNudge(ctx context.Context) string {
	st := &b.state
	var parts []string

	if r := ResearchNudge(st.ResearchStreak); r != "" {
		parts = append(parts, r)
	}
	if st.Focus != "" {
		parts = append(parts, "Current focus: "+st.Focus)
	}

	if query := b.lastThought(); query != "" {
		scores, err := b.retriever.Retrieve(ctx, query, b.cfg.RetrievalCount)
		if err != nil {
			logging.From(ctx).Warn("failed to retrieve related memories", "error", err)
		}
		now := b.clock()
		var lines []string
		for _, s := range scores {
			if now.Sub(s.Entry.Timestamp) > relatedMinAge {
				lines = append(lines, "- "+s.Entry.Content)
			}
		}
		if len(lines) > 0 {
			parts = append(parts, "Related memories:\n"+strings.Join(lines, "\n"))
		}
	}

	if len(parts) == 0 {
		return "Continue."
	}
	return "Continue.\n" + strings.Join(parts, "\n")
}

func (b *Brain) lastThought() string {
	for i := len(b.state.History) - 1; i >= 0; i-- {
		if b.state.History[i].Role == historyThought {
			return b.state.History[i].Text
		}
	}
	return ""
}
