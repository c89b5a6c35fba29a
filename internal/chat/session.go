package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*models.PromptResponse, error)
}

var exitCommands = map[string]bool{
	"exit": true,
	"quit": true,
	"q":    true,
	"sair": true,
}

// IsExitCommand reports whether input ends the session. Case and surrounding spaces are ignored.
func IsExitCommand(input string) bool {
	return exitCommands[strings.ToLower(strings.TrimSpace(input))]
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	hintStyle   = lipgloss.NewStyle().Faint(true)
	answerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type Session struct {
	answerer Answerer
	in       io.Reader
	out      io.Writer
}

func NewSession(answerer Answerer, in io.Reader, out io.Writer) *Session {
	return &Session{answerer: answerer, in: in, out: out}
}

// Run prompts until an exit command, end of input or ctx cancellation.
// Failed questions are reported and the loop keeps going.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.banner()
	for {
		fmt.Fprint(s.out, "\nAsk a question: ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			s.goodbye()
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(s.out)
			s.goodbye()
			select {
			case err := <-readErr:
				return err
			default:
				return nil
			}
		}

		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		if IsExitCommand(question) {
			s.goodbye()
			return nil
		}
		s.ask(ctx, question)
	}
}

func (s *Session) ask(ctx context.Context, question string) {
	fmt.Fprintln(s.out, hintStyle.Render("Searching..."))
	resp, err := s.answerer.Answer(ctx, question)
	if err != nil {
		// an interrupted session says goodbye instead
		if ctx.Err() != nil {
			log.Debug().Err(err).Str("question", question).Msg("question abandoned")
			return
		}
		log.Error().Err(err).Str("question", question).Msg("question failed")
		fmt.Fprintf(s.out, "%s %v\n", errorStyle.Render("Error processing question:"), err)
		return
	}
	fmt.Fprintf(s.out, "\n%s %s\n", answerStyle.Render("Answer:"), resp.Content)
}

func (s *Session) banner() {
	fmt.Fprintln(s.out, titleStyle.Render("Document Q&A Chat"))
	fmt.Fprintln(s.out, hintStyle.Render("Type your question, or 'exit' to quit."))
}

func (s *Session) goodbye() {
	fmt.Fprintln(s.out, "Goodbye!")
}
