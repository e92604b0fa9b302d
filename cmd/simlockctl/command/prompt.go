package command

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type answerValidator func(string) (bool, string)

type promptConfig struct {
	tries     int
	validator answerValidator
}

type promptOpt func(*promptConfig)

func withValidator(v answerValidator) promptOpt {
	return func(cfg *promptConfig) {
		cfg.validator = v
	}
}

func withMaxTries(i int) promptOpt {
	return func(cfg *promptConfig) {
		cfg.tries = i
	}
}

// prompt writes question to w and reads one line from r, asking again while
// the validator rejects the answer.
func prompt(r io.Reader, w io.Writer, question string, opts ...promptOpt) (string, error) {
	cfg := &promptConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	scanner := bufio.NewScanner(r)
	tries := 0
	for {
		if _, err := io.WriteString(w, question); err != nil {
			return "", err
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		answer := strings.TrimSpace(scanner.Text())

		if cfg.validator != nil {
			if ok, msg := cfg.validator(answer); !ok {
				_, _ = io.WriteString(w, msg)

				tries++
				if cfg.tries > 0 && tries >= cfg.tries {
					return "", fmt.Errorf("too many tries")
				}
				continue
			}
		}

		return answer, nil
	}
}

// confirm asks a yes/no question.
func confirm(r io.Reader, w io.Writer, question string) (bool, error) {
	answer, err := prompt(r, w, question,
		withMaxTries(3),
		withValidator(func(s string) (bool, string) {
			switch strings.ToLower(s) {
			case "y", "yes", "n", "no":
				return true, ""
			default:
				return false, "enter 'yes' or 'no'\n"
			}
		}),
	)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
