// Command signer prints the authentication headers for one API request, or
// seals a client secret for the clients file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Dan9191/transaction-service/internal/auth"
	"github.com/Dan9191/transaction-service/internal/utils"
)

func main() {
	var (
		apiKey   = flag.String("api-key", os.Getenv("API_KEY"), "client API key (or set API_KEY env)")
		secret   = flag.String("secret", os.Getenv("API_SECRET"), "client secret key (or set API_SECRET env)")
		method   = flag.String("method", "POST", "HTTP method")
		path     = flag.String("path", "/api/transactions", "request path")
		query    = flag.String("query", "", "raw query string without '?'")
		body     = flag.String("body", "", "request body")
		bodyFile = flag.String("body-file", "", "read the request body from a file")
		seal     = flag.String("seal", "", "seal this secret with ENCRYPTION_KEY and exit")
	)
	flag.Parse()

	if *seal != "" {
		key, err := utils.ParseKey(os.Getenv("ENCRYPTION_KEY"))
		if err != nil {
			fail("invalid ENCRYPTION_KEY: %v", err)
		}
		sealed, err := utils.SealSecret(*seal, key)
		if err != nil {
			fail("failed to seal secret: %v", err)
		}
		fmt.Println(sealed)
		return
	}

	if *apiKey == "" || *secret == "" {
		fail("-api-key and -secret are required")
	}
	payload := []byte(*body)
	if *bodyFile != "" {
		var err error
		if payload, err = os.ReadFile(*bodyFile); err != nil {
			fail("failed to read body file: %v", err)
		}
	}

	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	fmt.Printf("%s: %s\n", auth.HeaderAPIKey, *apiKey)
	fmt.Printf("%s: %s\n", auth.HeaderTimestamp, stamp)
	fmt.Printf("%s: %s\n", auth.HeaderSignature, auth.Sign(*secret, *method, *path, *query, stamp, payload))
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
