package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"golang.org/x/term"
)

const minPasswordLen = 8

// PasswordEnv lets non-interactive runs unlock the keystore.
const PasswordEnv = constants.ConfigEnvPrefix + "_KEYSTORE_PASSWORD"

func promptPassword(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		zeroBytes(pw)
		return nil, errors.Wrap(err, "password input failed")
	}
	if err := checkPassword(pw); err != nil {
		zeroBytes(pw)
		return nil, err
	}
	return pw, nil
}

func checkPassword(pw []byte) error {
	if len(pw) < minPasswordLen {
		return errors.Newf("password must be at least %d characters long", minPasswordLen)
	}
	for _, b := range pw {
		if b < 0x21 || b > 0x7e {
			return errors.New("password contains invalid characters (use printable ASCII without spaces)")
		}
	}
	return nil
}

// promptNewPassword asks twice and requires both entries to match.
func promptNewPassword() ([]byte, error) {
	pw, err := promptPassword("New keystore password: ")
	if err != nil {
		return nil, err
	}
	again, err := promptPassword("Repeat password: ")
	if err != nil {
		zeroBytes(pw)
		return nil, err
	}
	defer zeroBytes(again)
	if string(pw) != string(again) {
		zeroBytes(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func promptLineWithDefault(in io.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return def
	}
	if line = strings.TrimSpace(line); line == "" {
		return def
	}
	return line
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// keystorePassword returns a password source for the native strategy. The env
// var wins; otherwise the terminal is asked once and the answer is kept.
// Without either it returns nil, which the keystore treats as locked.
func keystorePassword(getenv func(string) string) func(context.Context) ([]byte, error) {
	var (
		mu     sync.Mutex
		cached []byte
	)
	return func(context.Context) ([]byte, error) {
		if v := getenv(PasswordEnv); v != "" {
			return []byte(v), nil
		}
		mu.Lock()
		defer mu.Unlock()
		if cached != nil {
			return append([]byte(nil), cached...), nil
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, nil
		}
		pw, err := promptPassword("Keystore password: ")
		if err != nil {
			return nil, err
		}
		cached = pw
		return append([]byte(nil), pw...), nil
	}
}
