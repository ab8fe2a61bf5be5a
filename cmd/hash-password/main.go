// Command hash-password generates the bcrypt hash expected by the
// AROMATCH_AUTH_ADMIN_PASSWORD_HASH setting.
//
// Usage:
//
//	hash-password <password>
package main

import (
	"fmt"
	"os"

	"github.com/aromatch/aromatch-api/internal/service/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hash-password <password>")
		os.Exit(2)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
