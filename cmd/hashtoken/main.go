// hashtoken prints the bcrypt hash to put in CONTROL_TOKEN_HASH. With
// no token argument it generates a random one and prints both.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cost := pflag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	pflag.Parse()

	token := pflag.Arg(0)
	if token == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		token = base64.RawURLEncoding.EncodeToString(raw)
		fmt.Printf("Token: %s\n", token)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("CONTROL_TOKEN_HASH=%s\n", hash)
}
