package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/marcus/riverwalk/internal/api"
	"github.com/marcus/riverwalk/internal/models"
	"github.com/marcus/riverwalk/internal/serverdb"
	"github.com/spf13/pflag"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-user":
		runAdminCreateUser(args[1:])
	case "list-users":
		runAdminListUsers(args[1:])
	case "delete-user":
		runAdminDeleteUser(args[1:])
	case "create-key":
		runAdminCreateKey(args[1:])
	case "list-keys":
		runAdminListKeys(args[1:])
	case "revoke-key":
		runAdminRevokeKey(args[1:])
	case "stats":
		runAdminStats(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: rwalk-server admin <command> [flags]

Commands:
  create-user  Create a user account
  list-users   List user accounts
  delete-user  Delete a user and all of their records and photos
  create-key   Create an API key for a user
  list-keys    List a user's API keys
  revoke-key   Revoke one of a user's API keys
  stats        Show record and photo counts`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// adminFlags returns a flag set carrying the shared --db and --driver flags.
func adminFlags(name string) (*pflag.FlagSet, *string, *string) {
	fs := pflag.NewFlagSet("admin "+name, pflag.ExitOnError)
	dbPath := fs.String("db", "", "path to server.db (default: from SYNC_SERVER_DB_PATH or ./data/server.db)")
	driver := fs.String("driver", "", "database/sql driver (default: from SYNC_DB_DRIVER or sqlite)")
	return fs, dbPath, driver
}

func openDB(dbPath, driver string) *serverdb.ServerDB {
	cfg := api.LoadConfig()
	if dbPath == "" {
		dbPath = cfg.ServerDBPath
	}
	if driver == "" {
		driver = cfg.DBDriver
	}
	store, err := serverdb.OpenDriver(driver, dbPath)
	if err != nil {
		fatalf("open database: %v", err)
	}
	return store
}

// mustUser looks up a user by email or exits.
func mustUser(store *serverdb.ServerDB, email string) *serverdb.User {
	user, err := store.GetUserByEmail(email)
	if err != nil {
		fatalf("%v", err)
	}
	if user == nil {
		fatalf("user not found: %s", email)
	}
	return user
}

func requireFlag(fs *pflag.FlagSet, name, value string) {
	if value == "" {
		fmt.Fprintf(os.Stderr, "error: --%s is required\n", name)
		fs.Usage()
		os.Exit(1)
	}
}

func runAdminCreateUser(args []string) {
	fs, dbPath, driver := adminFlags("create-user")
	email := fs.StringP("email", "e", "", "user email address")
	withKey := fs.Bool("key", false, "also create a sync API key")
	fs.Parse(args)
	requireFlag(fs, "email", *email)

	store := openDB(*dbPath, *driver)
	defer store.Close()

	if existing, err := store.GetUserByEmail(*email); err != nil {
		fatalf("%v", err)
	} else if existing != nil {
		fatalf("user already exists: %s", existing.Email)
	}

	user, err := store.CreateUser(*email)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("created user %s (%s)\n", user.Email, user.ID)

	if *withKey {
		plaintext, _, err := store.GenerateAPIKey(user.ID, "rwalk", "sync", nil)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("  key: %s\n", plaintext)
		fmt.Println("\nSave this key now -- it will not be shown again.")
	}
}

func runAdminListUsers(args []string) {
	fs, dbPath, driver := adminFlags("list-users")
	fs.Parse(args)

	store := openDB(*dbPath, *driver)
	defer store.Close()

	users, err := store.ListUsers()
	if err != nil {
		fatalf("%v", err)
	}
	if len(users) == 0 {
		fmt.Println("no users")
		return
	}
	for _, u := range users {
		fmt.Printf("%-20s %-32s %s\n", u.ID, u.Email, u.CreatedAt.Format("2006-01-02"))
	}
}

func runAdminDeleteUser(args []string) {
	fs, dbPath, driver := adminFlags("delete-user")
	email := fs.StringP("email", "e", "", "user email address")
	yes := fs.BoolP("yes", "y", false, "do not ask for confirmation")
	fs.Parse(args)
	requireFlag(fs, "email", *email)

	store := openDB(*dbPath, *driver)
	defer store.Close()

	user := mustUser(store, *email)
	if !*yes {
		fatalf("deleting %s removes all of their records; pass --yes to confirm", user.Email)
	}
	if err := store.DeleteUser(user.ID); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("deleted user %s\n", user.Email)
}

func runAdminCreateKey(args []string) {
	fs, dbPath, driver := adminFlags("create-key")
	email := fs.StringP("email", "e", "", "user email address")
	scopes := fs.String("scopes", "sync", "comma-separated scopes (sync, read, admin)")
	name := fs.StringP("name", "n", "", "key name (e.g. field-tablet)")
	ttl := fs.Duration("expires-in", 0, "key lifetime, e.g. 720h (default: never expires)")
	fs.Parse(args)
	requireFlag(fs, "email", *email)
	requireFlag(fs, "name", *name)

	if err := api.ValidateScopes(*scopes); err != nil {
		fatalf("%v", err)
	}

	store := openDB(*dbPath, *driver)
	defer store.Close()

	user := mustUser(store, *email)

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().Add(*ttl).UTC()
		expiresAt = &t
	}

	plaintext, ak, err := store.GenerateAPIKey(user.ID, *name, *scopes, expiresAt)
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("created API key for %s\n", user.Email)
	fmt.Printf("  id:     %s\n", ak.ID)
	fmt.Printf("  name:   %s\n", ak.Name)
	fmt.Printf("  scopes: %s\n", ak.Scopes)
	if ak.ExpiresAt != nil {
		fmt.Printf("  expires: %s\n", ak.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("  key:    %s\n", plaintext)
	fmt.Println("\nSave this key now -- it will not be shown again.")
}

func runAdminListKeys(args []string) {
	fs, dbPath, driver := adminFlags("list-keys")
	email := fs.StringP("email", "e", "", "user email address")
	fs.Parse(args)
	requireFlag(fs, "email", *email)

	store := openDB(*dbPath, *driver)
	defer store.Close()

	user := mustUser(store, *email)
	keys, err := store.ListAPIKeys(user.ID)
	if err != nil {
		fatalf("%v", err)
	}
	if len(keys) == 0 {
		fmt.Println("no keys")
		return
	}
	for _, k := range keys {
		used := "never used"
		if k.LastUsedAt != nil {
			used = "last used " + k.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-20s %-16s %-12s %s...  %s\n", k.ID, k.Name, k.Scopes, k.KeyPrefix, used)
	}
}

func runAdminRevokeKey(args []string) {
	fs, dbPath, driver := adminFlags("revoke-key")
	email := fs.StringP("email", "e", "", "user email address")
	keyID := fs.String("id", "", "key id (see list-keys)")
	fs.Parse(args)
	requireFlag(fs, "email", *email)
	requireFlag(fs, "id", *keyID)

	store := openDB(*dbPath, *driver)
	defer store.Close()

	user := mustUser(store, *email)
	if err := store.RevokeAPIKey(*keyID, user.ID); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("revoked key %s\n", *keyID)
}

func runAdminStats(args []string) {
	fs, dbPath, driver := adminFlags("stats")
	fs.Parse(args)

	store := openDB(*dbPath, *driver)
	defer store.Close()

	counts, err := store.CountRows()
	if err != nil {
		fatalf("%v", err)
	}
	tables := make([]string, 0, len(counts))
	for k := range counts {
		tables = append(tables, string(k))
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Printf("%-20s %d\n", t, counts[models.Kind(t)])
	}

	n, size, err := store.PhotoObjectStats()
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%-20s %d (%d bytes)\n", "photo objects", n, size)
}
