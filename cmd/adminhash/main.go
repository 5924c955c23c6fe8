// Command adminhash reads the admin password from stdin and prints the bcrypt
// hash to use as CORAL_ADMIN_PASSWORD_HASH.
//
//	printf '%s' "$PASSWORD" | adminhash
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"coralrefuge.org/internal/auth"
)

const minPasswordLen = 12

func main() {
	hash, err := hashFrom(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "adminhash:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

// hashFrom hashes the first line of r, without its line ending.
func hashFrom(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if utf8.RuneCountInString(password) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return auth.HashPassword(password)
}
