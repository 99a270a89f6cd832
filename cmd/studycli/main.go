package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type deck struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	CardCount int       `json:"cardCount"`
}

type promptView struct {
	Card struct {
		ID       uuid.UUID `json:"id"`
		Question string    `json:"question"`
		Answer   string    `json:"answer"`
	} `json:"card"`
	Choices  []string `json:"choices,omitempty"`
	Position int      `json:"position"`
	Total    int      `json:"total"`
}

type summaryView struct {
	Correct     int `json:"correct"`
	Incorrect   int `json:"incorrect"`
	Total       int `json:"total"`
	EarnedStars int `json:"earnedStars"`
}

type sessionView struct {
	ID      uuid.UUID    `json:"id"`
	Mode    string       `json:"mode"`
	State   string       `json:"state"`
	Total   int          `json:"total"`
	Prompt  *promptView  `json:"prompt"`
	Summary *summaryView `json:"summary"`
}

type stepView struct {
	Correct       bool         `json:"correct"`
	CorrectAnswer string       `json:"correctAnswer"`
	Next          *promptView  `json:"next"`
	Summary       *summaryView `json:"summary"`
	StarsTotal    *int         `json:"starsTotal"`
}

type apiClient struct {
	baseURI string
	token   string
	client  *http.Client
}

func (c *apiClient) do(method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, c.baseURI+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Screens the client moves through, top to bottom.
type screen int

const (
	screenDecks screen = iota
	screenMode
	screenStudy
	screenDone
)

type decksMsg []deck
type sessionMsg *sessionView
type stepMsg *stepView
type errMsg struct{ err error }

type model struct {
	api       *apiClient
	textInput textinput.Model

	screen   screen
	decks    []deck
	deckIdx  int
	mode     string
	session  *sessionView
	prompt   *promptView
	revealed bool
	lastStep *stepView
	errText  string
}

func initialModel(api *apiClient) model {
	ti := textinput.New()
	ti.Placeholder = "answer"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 40
	return model{api: api, textInput: ti}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, fetchDecksCmd(m.api))
}

func fetchDecksCmd(api *apiClient) tea.Cmd {
	return func() tea.Msg {
		var decks []deck
		if err := api.do("GET", "/api/decks", nil, &decks); err != nil {
			return errMsg{err}
		}
		return decksMsg(decks)
	}
}

func startSessionCmd(api *apiClient, deckID uuid.UUID, mode string) tea.Cmd {
	return func() tea.Msg {
		var view sessionView
		body := map[string]string{"mode": mode, "deckId": deckID.String()}
		if err := api.do("POST", "/api/sessions", body, &view); err != nil {
			return errMsg{err}
		}
		return sessionMsg(&view)
	}
}

func answerCmd(api *apiClient, sessionID uuid.UUID, body map[string]any) tea.Cmd {
	return func() tea.Msg {
		var step stepView
		path := "/api/sessions/" + sessionID.String() + "/answer"
		if err := api.do("POST", path, body, &step); err != nil {
			return errMsg{err}
		}
		return stepMsg(&step)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			if m.session != nil && m.screen == screenStudy {
				path := "/api/sessions/" + m.session.ID.String() + "/exit"
				m.api.do("POST", path, nil, nil)
			}
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.handleEnter()
		}

	case decksMsg:
		m.decks = msg
		m.screen = screenDecks

	case sessionMsg:
		m.session = msg
		m.prompt = msg.Prompt
		m.screen = screenStudy
		m.revealed = false
		m.errText = ""
		m.textInput.Reset()

	case stepMsg:
		m.lastStep = msg
		m.revealed = false
		m.errText = ""
		m.textInput.Reset()
		if msg.Summary != nil {
			m.screen = screenDone
		} else {
			m.prompt = msg.Next
		}

	case errMsg:
		m.errText = msg.err.Error()
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	switch m.screen {
	case screenDecks:
		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(m.decks) {
			m.errText = "pick a deck by number"
			return m, nil
		}
		m.deckIdx = idx - 1
		m.screen = screenMode
		m.textInput.Reset()
		return m, nil

	case screenMode:
		mode, ok := map[string]string{
			"1": "learn", "2": "cram", "3": "multiple-choice", "4": "typed",
		}[input]
		if !ok {
			m.errText = "pick a mode by number"
			return m, nil
		}
		m.mode = mode
		m.textInput.Reset()
		return m, startSessionCmd(m.api, m.decks[m.deckIdx].ID, mode)

	case screenStudy:
		if m.prompt == nil {
			return m, nil
		}
		// Flip first in the self-graded modes; the grade comes after.
		if (m.mode == "learn" || m.mode == "cram") && !m.revealed {
			m.revealed = true
			m.textInput.Reset()
			return m, nil
		}
		body, ok := m.answerBody(input)
		if !ok {
			return m, nil
		}
		m.textInput.Reset()
		return m, answerCmd(m.api, m.session.ID, body)

	case screenDone:
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) answerBody(input string) (map[string]any, bool) {
	switch m.mode {
	case "learn":
		switch input {
		case "1":
			return map[string]any{"knewIt": false}, true
		case "2":
			return map[string]any{"knewIt": true}, true
		}
		m.errText = "(1) missed or (2) knew it"
		return nil, false
	case "cram":
		return map[string]any{"advance": true}, true
	case "multiple-choice":
		idx, err := strconv.Atoi(input)
		if err != nil || idx < 1 || idx > len(m.prompt.Choices) {
			m.errText = "pick a choice by number"
			return nil, false
		}
		return map[string]any{"choice": m.prompt.Choices[idx-1]}, true
	case "typed":
		if input == "" {
			m.errText = "type an answer"
			return nil, false
		}
		return map[string]any{"typed": input}, true
	}
	return nil, false
}

func (m model) View() string {
	var b strings.Builder
	switch m.screen {
	case screenDecks:
		b.WriteString("Your decks:\n\n")
		for i, d := range m.decks {
			fmt.Fprintf(&b, "  (%d) %s [%s] - %d cards\n", i+1, d.Name, d.Subject, d.CardCount)
		}
		b.WriteString("\nPick a deck by number.\n")

	case screenMode:
		b.WriteString("Study mode:\n\n")
		b.WriteString("  (1) Learn    (2) Cram    (3) Multiple choice    (4) Typed\n")

	case screenStudy:
		if m.lastStep != nil {
			if m.lastStep.Correct {
				b.WriteString("Correct!\n\n")
			} else {
				fmt.Fprintf(&b, "Incorrect. The answer was: %s\n\n", m.lastStep.CorrectAnswer)
			}
		}
		if m.prompt != nil {
			fmt.Fprintf(&b, "Card %d of %d\n\n", m.prompt.Position, m.prompt.Total)
			b.WriteString(strings.Repeat("-", 20) + "\n\n")
			b.WriteString("  " + m.prompt.Card.Question + "\n\n")
			if m.revealed {
				b.WriteString("  " + m.prompt.Card.Answer + "\n\n")
			}
			for i, c := range m.prompt.Choices {
				fmt.Fprintf(&b, "  (%d) %s\n", i+1, c)
			}
			b.WriteString("\n" + strings.Repeat("-", 20) + "\n")
			switch m.mode {
			case "learn":
				if m.revealed {
					b.WriteString("(1) Missed    (2) Knew it\n")
				} else {
					b.WriteString("Hit enter to flip the card.\n")
				}
			case "cram":
				if m.revealed {
					b.WriteString("Hit enter for the next card.\n")
				} else {
					b.WriteString("Hit enter to flip the card.\n")
				}
			}
		}

	case screenDone:
		sum := m.lastStep.Summary
		b.WriteString("Session complete!\n\n")
		fmt.Fprintf(&b, "  %d/%d correct", sum.Correct, sum.Total)
		if sum.EarnedStars > 0 {
			fmt.Fprintf(&b, "  %s", strings.Repeat("*", sum.EarnedStars))
		}
		b.WriteString("\n")
		if m.lastStep.StarsTotal != nil {
			fmt.Fprintf(&b, "  Star total: %d\n", *m.lastStep.StarsTotal)
		}
		b.WriteString("\nHit enter to quit.\n")
	}

	if m.errText != "" {
		b.WriteString("\n! " + m.errText + "\n")
	}
	return fmt.Sprintf("%s\n%s\n", b.String(), m.textInput.View())
}

func main() {
	baseURI := os.Getenv("STUDYBOX_URI")
	if baseURI == "" {
		baseURI = "http://localhost:8190"
	}
	token := os.Getenv("STUDYBOX_TOKEN")
	if token == "" {
		fmt.Println("Set STUDYBOX_TOKEN to a valid JWT first.")
		os.Exit(1)
	}

	api := &apiClient{
		baseURI: baseURI,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	p := tea.NewProgram(initialModel(api))
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
