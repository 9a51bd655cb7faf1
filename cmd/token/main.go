// Command token prints a signed identity token for use in user_join.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Tyrowin/gochat/internal/auth"
)

func main() {
	secret := flag.String("secret", os.Getenv("AUTH_SECRET"), "HMAC secret (defaults to $AUTH_SECRET)")
	issuer := flag.String("issuer", "gochat", "Token issuer, must match AUTH_ISSUER")
	subject := flag.String("sub", "", "Persistent user id")
	name := flag.String("name", "", "Display name")
	email := flag.String("email", "", "Email address")
	avatar := flag.String("avatar", "", "Avatar URL")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -sub <user-id> [-name <name>] [-email <email>] [-secret <secret>] [-ttl 24h]")
		os.Exit(1)
	}

	issuerFn, err := auth.NewIssuer(*secret, *issuer, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid issuer config: %v\n", err)
		os.Exit(1)
	}

	token, err := issuerFn.Issue(auth.Identity{
		Subject: *subject,
		Name:    *name,
		Email:   *email,
		Avatar:  *avatar,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
