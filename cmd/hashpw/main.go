// Command hashpw reads a password from the terminal and prints a digest
// suitable for the users.password_hash column, using the same
// PASSWORD_HASH_ALGO / BCRYPT_COST / ARGON2_* settings as the API.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
)

func main() {
	_ = godotenv.Load()

	cfg, err := auth.HashingConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	pw, err := readPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read password: %v\n", err)
		os.Exit(1)
	}
	if pw == "" {
		fmt.Fprintln(os.Stderr, "empty password")
		os.Exit(1)
	}

	digest, algo, err := auth.NewHashers(cfg).Hash(pw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "algo: %s\n", algo)
	fmt.Println(digest)
}

// readPassword prompts twice on a terminal, or reads one line when stdin is piped.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 -- fd fits in int
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Confirm: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
