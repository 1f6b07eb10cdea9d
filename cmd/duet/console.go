package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/HMasataka/duet/internal/negotiation"
	"github.com/HMasataka/duet/payload/signal"
	"github.com/pterm/pterm"
)

const (
	commandShare       = "share"
	commandStop        = "stop sharing"
	commandRenegotiate = "renegotiate"
	commandStatus      = "status"
	commandQuit        = "quit"
)

type console struct{}

func newConsole() *console {
	return &console{}
}

// prompt runs a blocking pterm prompt and gives up when ctx is done.
func prompt(ctx context.Context, show func() (string, error)) (string, error) {
	type answer struct {
		text string
		err  error
	}

	done := make(chan answer, 1)
	go func() {
		text, err := show()
		done <- answer{text: text, err: err}
	}()

	select {
	case a := <-done:
		return a.text, a.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readToken asks for a token until something non-empty is pasted. Line breaks
// added by chat clients are kept and ignored by the decoder.
func (c *console) readToken(ctx context.Context, text string) (signal.Token, error) {
	for {
		raw, err := prompt(ctx, func() (string, error) {
			return pterm.DefaultInteractiveTextInput.WithMultiLine().Show(text)
		})
		if err != nil {
			return "", err
		}

		if strings.TrimSpace(raw) != "" {
			return signal.Token(raw), nil
		}
	}
}

func (c *console) showToken(title string, token signal.Token) {
	pterm.DefaultSection.Println(title)
	fmt.Println(token)
	pterm.Println()
}

func (c *console) choose(ctx context.Context) (string, error) {
	return prompt(ctx, func() (string, error) {
		return pterm.DefaultInteractiveSelect.
			WithOptions([]string{commandShare, commandStop, commandRenegotiate, commandStatus, commandQuit}).
			WithDefaultText("Command").
			Show()
	})
}

func (c *console) showStatus(controller *negotiation.Controller) {
	sharing := "no"
	if controller.Sharing() {
		sharing = "yes"
	}

	state := controller.State()

	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"identity", controller.Identity().String()},
		{"remote", controller.RemoteIdentity().String()},
		{"role", controller.Role().String()},
		{"state", state.String()},
		{"status", string(state.Status())},
		{"sharing", sharing},
	}).Render()
}

type spinner struct {
	printer *pterm.SpinnerPrinter
}

func (c *console) spin(text string) spinner {
	printer, err := pterm.DefaultSpinner.Start(text)
	if err != nil {
		return spinner{}
	}
	return spinner{printer: printer}
}

func (s spinner) stop(err error) {
	if s.printer == nil {
		return
	}

	if err != nil {
		s.printer.Fail(err.Error())
		return
	}
	s.printer.Success()
}
