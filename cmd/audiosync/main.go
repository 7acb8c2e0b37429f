package main

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/audiosync/pkg/audio/backends/pulseaudio"
)

const (
	exitCodeFault   = 1
	exitCodeNoMatch = 2
)

type exitCodeError struct {
	Code int
	Err  error
}

func (e exitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e exitCodeError) Unwrap() error {
	return e.Err
}

func main() {
	a := newApp()
	cmd := a.newRootCommand()
	err := cmd.Execute()
	a.close()
	if err == nil {
		return
	}
	var exitErr exitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, exitErr.Err)
		}
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCodeFault)
}
