// File: cmd/tandem/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic_WritesLog(t *testing.T) {
	defer resetMocks()

	var (
		written  string
		path     string
		exitCode = -1
	)
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		path, written = name, string(data)
		return nil
	}
	osExit = func(code int) { exitCode = code }

	func() {
		defer handlePanic()
		panic("chain exploded")
	}()

	assert.Equal(t, panicLogFile, path)
	assert.Contains(t, written, "panic: chain exploded")
	assert.Contains(t, written, "goroutine", "the stack trace is included")
	assert.Equal(t, 2, exitCode)
}

func TestHandlePanic_WriteFailure(t *testing.T) {
	defer resetMocks()

	exitCode := -1
	osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
	osExit = func(code int) { exitCode = code }

	func() {
		defer handlePanic()
		panic("boom")
	}()
	assert.Equal(t, 2, exitCode)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	defer resetMocks()

	called := false
	osExit = func(int) { called = true }
	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
