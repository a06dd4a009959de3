package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.-]+$`)

// PromptForSymbol asks for a ticker symbol and normalizes it.
func PromptForSymbol(def string) (string, error) {
	var symbol string
	prompt := &survey.Input{
		Message: "Enter the symbol to trade (e.g., AAPL, MSFT):",
		Default: def,
		Help:    "A valid ticker symbol the agent will learn to trade",
	}

	err := survey.AskOne(prompt, &symbol, survey.WithValidator(func(val interface{}) error {
		str := strings.TrimSpace(strings.ToUpper(val.(string)))
		if str == "" {
			return fmt.Errorf("symbol cannot be empty")
		}
		if len(str) > 10 {
			return fmt.Errorf("symbol too long (max 10 characters)")
		}
		if !symbolPattern.MatchString(str) {
			return fmt.Errorf("invalid symbol format (letters, numbers, dots, hyphens)")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToUpper(symbol)), nil
}

// PromptForMode asks which session mode to run.
func PromptForMode() (string, error) {
	var mode string
	prompt := &survey.Select{
		Message: "What should the agent do?",
		Options: []string{"train", "run", "backtest"},
		Default: "train",
		Description: func(value string, _ int) string {
			switch value {
			case "train":
				return "learn a policy with exploration"
			case "run":
				return "deploy the learned policy"
			default:
				return "replay historical bars with the learned policy"
			}
		},
	}
	if err := survey.AskOne(prompt, &mode); err != nil {
		return "", err
	}
	return mode, nil
}

// PromptForEpisodes asks how many episodes to run.
func PromptForEpisodes(def int) (int, error) {
	var raw string
	prompt := &survey.Input{
		Message: "Number of episodes:",
		Default: strconv.Itoa(def),
	}

	err := survey.AskOne(prompt, &raw, survey.WithValidator(func(val interface{}) error {
		n, err := strconv.Atoi(strings.TrimSpace(val.(string)))
		if err != nil {
			return fmt.Errorf("enter a whole number")
		}
		if n <= 0 || n > 100000 {
			return fmt.Errorf("episodes must be between 1 and 100000")
		}
		return nil
	}))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

// PromptConfirm asks a yes/no question.
func PromptConfirm(message string, def bool) (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{Message: message, Default: def}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}
