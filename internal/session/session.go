package session

import (
	"sync"

	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

// WindowSize bounds how many prior clinician questions are replayed into the
// prompt. Older questions fall off silently.
const WindowSize = 3

// Session holds the single active patient snapshot and the rolling question
// window. One instance serves the whole process; loading a new snapshot
// starts a fresh conversation.
type Session struct {
	mu        sync.RWMutex
	snapshot  *model.PatientSnapshot
	questions []string
}

func New() *Session {
	return &Session{}
}

// SetSnapshot installs a new patient and resets the question window.
func (s *Session) SetSnapshot(snap *model.PatientSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.questions = nil
}

func (s *Session) Snapshot() (*model.PatientSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, appErr.ErrNoPatient
	}
	return s.snapshot, nil
}

// AppendQuestion records a question and returns the questions that preceded
// it, oldest first, already bounded to the window.
func (s *Session) AppendQuestion(question string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior := make([]string, len(s.questions))
	copy(prior, s.questions)
	s.questions = append(s.questions, question)
	if len(s.questions) > WindowSize {
		s.questions = s.questions[len(s.questions)-WindowSize:]
	}
	return prior
}

// RecentQuestions returns the current window, oldest first.
func (s *Session) RecentQuestions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.questions))
	copy(out, s.questions)
	return out
}
