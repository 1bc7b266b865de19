package launch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/abhisek/rehearse/internal/room"
)

// ErrNoQuestionFile is returned when the launch has nowhere to read questions from.
var ErrNoQuestionFile = errors.New("no question file given")

type questionFile struct {
	Questions []questionEntry `json:"questions" validate:"required,min=1,dive"`
}

type questionEntry struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadQuestions reads the ordered question list from a JSON file. Both a bare
// array and an object with a "questions" field are accepted.
func LoadQuestions(path string) ([]room.Question, error) {
	if path == "" {
		return nil, ErrNoQuestionFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return ParseQuestions(data)
}

// ParseQuestions decodes and validates a question list.
func ParseQuestions(data []byte) ([]room.Question, error) {
	var qf questionFile
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &qf.Questions); err != nil {
			return nil, fmt.Errorf("parse questions: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &qf); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}

	if err := validate.Struct(qf); err != nil {
		return nil, describe(err)
	}

	out := make([]room.Question, len(qf.Questions))
	for i, q := range qf.Questions {
		out[i] = room.Question{ID: q.ID, Text: strings.TrimSpace(q.Text)}
	}
	return out, nil
}

// Resolve builds the launch context for a room. An empty session id is
// allowed; the room then skips every status call.
func Resolve(sessionID, questionsPath string) (room.Launch, error) {
	qs, err := LoadQuestions(questionsPath)
	if err != nil {
		return room.Launch{}, err
	}
	return room.Launch{SessionID: strings.TrimSpace(sessionID), Questions: qs}, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("invalid questions: %w", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "min", "required":
		if fe.Field() == "Questions" {
			return errors.New("invalid questions: at least one question is required")
		}
	}
	return fmt.Errorf("invalid questions: %s is %s", fe.Namespace(), fe.Tag())
}
