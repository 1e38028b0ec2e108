package cli

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// promptLogin asks for whatever login fields are still empty.
func promptLogin(email, password, totp *string, askTOTP bool) error {
	var fields []huh.Field
	if *email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(email))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password))
	}
	if askTOTP && *totp == "" {
		fields = append(fields, huh.NewInput().Title("Authenticator code").CharLimit(8).Value(totp))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// promptRegister asks for the fields of a new account that are still empty.
func promptRegister(email, password, first, last *string) error {
	var fields []huh.Field
	if *first == "" {
		fields = append(fields, huh.NewInput().Title("First name").Value(first))
	}
	if *last == "" {
		fields = append(fields, huh.NewInput().Title("Last name").Value(last))
	}
	if *email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(email))
	}
	if *password == "" {
		var confirm string
		fields = append(fields,
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(password),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&confirm).
				Validate(func(s string) error {
					if s != *password {
						return fmt.Errorf("passwords do not match")
					}
					return nil
				}),
		)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// confirm asks a yes/no question.
func confirm(message string) (bool, error) {
	ok := false
	if err := huh.NewForm(huh.NewGroup(huh.NewConfirm().Title(message).Value(&ok))).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return ok, nil
}
