// Command provision registers OAuth clients and resource owners in the
// configured store. Client and user records are created out-of-band; the
// server itself never writes them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pixelfort/oauth-server/internal"
	"github.com/pixelfort/oauth-server/internal/config"
	"github.com/pixelfort/oauth-server/internal/crypto"
	"github.com/pixelfort/oauth-server/internal/storage"
)

type uriFlag []string

func (f *uriFlag) String() string { return strings.Join(*f, ", ") }
func (f *uriFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: provision -config <path> <client|user|list> [flags]")
	os.Exit(2)
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	flag.Parse()

	if *conf == "" || flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := internal.SetupStorage(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: setting up storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch flag.Arg(0) {
	case "client":
		provisionClient(ctx, store, flag.Args()[1:])
	case "user":
		provisionUser(ctx, store, flag.Args()[1:])
	case "list":
		listClients(ctx, store)
	default:
		usage()
	}
}

func provisionClient(ctx context.Context, store storage.Storage, args []string) {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	id := fs.String("id", "", "client id (required)")
	secret := fs.String("secret", "", "client secret (generated if omitted)")
	var redirectURIs uriFlag
	fs.Var(&redirectURIs, "redirect-uri", "permitted redirect URI (repeatable, required)")
	_ = fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: -id is required")
		os.Exit(1)
	}
	if len(redirectURIs) == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one -redirect-uri is required")
		os.Exit(1)
	}

	plaintext := *secret
	if plaintext == "" {
		generated, err := crypto.GenerateSecureToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: generating secret: %v\n", err)
			os.Exit(1)
		}
		plaintext = generated
	}

	hashed, err := crypto.HashSecret(plaintext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: hashing secret: %v\n", err)
		os.Exit(1)
	}

	client := &storage.Client{
		ID:           *id,
		Secret:       hashed,
		RedirectURIs: redirectURIs,
	}
	if err := store.CreateClient(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "error: creating client: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Client created: %s\n", *id)
	if *secret == "" {
		// Only shown once; the store keeps a bcrypt hash
		fmt.Printf("Client secret: %s\n", plaintext)
	}
}

func provisionUser(ctx context.Context, store storage.Storage, args []string) {
	fs := flag.NewFlagSet("user", flag.ExitOnError)
	email := fs.String("email", "", "user email (required)")
	password := fs.String("password", "", "user password (required)")
	_ = fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "error: -email and -password are required")
		os.Exit(1)
	}

	hashed, err := crypto.HashSecret(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: hashing password: %v\n", err)
		os.Exit(1)
	}

	user := &storage.User{
		Email:    *email,
		Password: hashed,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		fmt.Fprintf(os.Stderr, "error: creating user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User created: %s\n", *email)
}

func listClients(ctx context.Context, store storage.Storage) {
	clients, err := store.ListClients(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: listing clients: %v\n", err)
		os.Exit(1)
	}

	for _, client := range clients {
		fmt.Printf("%s\t%s\n", client.ID, strings.Join(client.RedirectURIs, " "))
	}
}
