// Command tokengen mints owner API tokens for out-of-band
// distribution. The server never issues tokens itself; whoever runs
// the deployment hands them out.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/snaplink/snaplink/config"
	httpUtil "github.com/snaplink/snaplink/internal/http/util"
)

func main() {
	owner := flag.String("owner", "", "owner id to bind the token to")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	if *owner == "" {
		fmt.Fprintln(os.Stderr, "usage: tokengen -owner <id> [-ttl 720h]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.TokenSecret == "" {
		fmt.Fprintln(os.Stderr, "TOKEN_SECRET is not configured")
		os.Exit(1)
	}

	signer := httpUtil.NewTokenSigner([]byte(cfg.Server.TokenSecret), *ttl)
	token, err := signer.Issue(*owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
